package metric

import (
	"sync"
	"time"
)

// Window accumulates durations between periodic log lines: the extractor
// resets it every reporting interval, so min/avg/max describe only the
// last interval, not the process lifetime.
type Window struct {
	mu    sync.Mutex
	count int
	sum   time.Duration
	min   time.Duration
	max   time.Duration
}

func (w *Window) Observe(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count == 0 || d < w.min {
		w.min = d
	}
	if d > w.max {
		w.max = d
	}
	w.sum += d
	w.count++
}

// Take returns the interval statistics and resets the window.
func (w *Window) Take() (min, avg, max time.Duration, count int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count == 0 {
		return 0, 0, 0, 0
	}
	min, max, count = w.min, w.max, w.count
	avg = w.sum / time.Duration(w.count)
	w.count = 0
	w.sum = 0
	w.min = 0
	w.max = 0
	return min, avg, max, count
}
