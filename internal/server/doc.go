// Package server provides the HTTP and WebSocket surface of the relay:
// the viewer websocket endpoint, the control-panel JSON API, health and
// metrics endpoints. Connection admission is guarded by origin checks and
// global plus per-IP connection limits.
package server
