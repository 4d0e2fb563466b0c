// Package broadcast fans the live frame out to any number of independent
// stream sessions. There is no per-client queue: every reader sees the
// single most recent frame, so a late joiner gets the live edge and a slow
// client cannot apply backpressure to the producer.
package broadcast

import (
	"sync"

	"github.com/camloop/camsim/frame"
)

// Slot is the single most-recent-frame holder: one writer (the code
// extractor), many readers (session callbacks). Frames are immutable once
// published, so swapping the pointer under the lock is enough to keep
// readers from ever observing a torn frame.
type Slot struct {
	mu sync.RWMutex
	f  *frame.Frame
}

// Publish replaces the current frame. The previous value is discarded;
// readers are at most one publish behind.
func (s *Slot) Publish(f *frame.Frame) {
	s.mu.Lock()
	s.f = f
	s.mu.Unlock()
}

// Latest returns the current frame, or false if nothing has been
// published yet.
func (s *Slot) Latest() (*frame.Frame, bool) {
	s.mu.RLock()
	f := s.f
	s.mu.RUnlock()
	if f == nil {
		return nil, false
	}
	return f, true
}
