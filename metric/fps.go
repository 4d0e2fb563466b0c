package metric

import (
	"sync"
	"time"
)

// FPSMeter measures achieved throughput over fixed-size frame batches.
// Tick returns a rate once per batch, zero otherwise.
type FPSMeter struct {
	mu    sync.Mutex
	every int
	count int
	since time.Time
}

func NewFPSMeter(every int) *FPSMeter {
	return &FPSMeter{every: every, since: time.Now()}
}

// Tick records one frame. When the batch completes it returns the measured
// rate and true, then starts the next batch.
func (m *FPSMeter) Tick() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	if m.count < m.every {
		return 0, false
	}
	elapsed := time.Since(m.since).Seconds()
	fps := 0.0
	if elapsed > 0 {
		fps = float64(m.count) / elapsed
	}
	m.count = 0
	m.since = time.Now()
	return fps, true
}
