package detector

import (
	"sync"
	"time"
)

// timingWindow keeps the most recent detection durations.
type timingWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
}

func newTimingWindow(size int) *timingWindow {
	if size <= 0 {
		size = 1
	}
	return &timingWindow{samples: make([]time.Duration, size)}
}

// add records d and reports whether the window just wrapped around.
func (w *timingWindow) add(d time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
		return true
	}
	return false
}

func (w *timingWindow) average() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range w.samples[:n] {
		sum += s
	}
	return sum / time.Duration(n)
}

func (w *timingWindow) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.full {
		return len(w.samples)
	}
	return w.next
}
