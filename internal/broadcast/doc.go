// Package broadcast owns the live viewer connections. A single actor
// goroutine holds the subscriber registry (handle, filter, outbound queue)
// and fans display events out to every subscriber whose filter admits them.
// Each subscriber drains its own bounded queue on a dedicated writer
// goroutine, so one slow viewer never stalls the feed or other viewers.
package broadcast
