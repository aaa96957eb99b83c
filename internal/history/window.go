// Package history keeps a bounded, arrival-ordered window of the most
// recent display events, served to newly joined viewers on replay.
package history

import (
	"sync"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/domain"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/metrics"
)

// DefaultCapacity matches what an overlay can reasonably backfill.
const DefaultCapacity = 100

// Window is a fixed-capacity ring of DisplayEvents. The feed listener is
// the sole writer; readers take a point-in-time copy, so no lock is held
// while a snapshot is consumed.
type Window struct {
	mu    sync.RWMutex
	buf   []domain.DisplayEvent
	start int // index of the oldest event
	size  int
}

// NewWindow creates a window holding at most capacity events.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{buf: make([]domain.DisplayEvent, capacity)}
}

// Append adds ev, evicting the oldest event when full. O(1).
func (w *Window) Append(ev domain.DisplayEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = ev
		w.size++
	} else {
		w.buf[w.start] = ev
		w.start = (w.start + 1) % len(w.buf)
	}
	metrics.HistorySize.Set(float64(w.size))
}

// Snapshot returns the buffered events in arrival order, filtered by the
// same admission rule the broadcaster applies per subscriber.
func (w *Window) Snapshot(filter domain.Filter) []domain.DisplayEvent {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]domain.DisplayEvent, 0, w.size)
	for i := 0; i < w.size; i++ {
		ev := w.buf[(w.start+i)%len(w.buf)]
		if filter.Admits(ev.GroupID) {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of buffered events.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size
}
