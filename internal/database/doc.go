// Package database connects to the chat logger's Postgres instance. The
// schema (nonebot chatrecorder/session tables) is owned by the external
// logger; this package only installs the notification trigger and reads
// session metadata.
package database
