package broadcast

import (
	"sync"

	"github.com/google/uuid"
)

// SessionID is an opaque simulator-issued session identifier. The serving
// engine only ever carries it back into the registry; it never owns
// session state itself.
type SessionID string

// HighWater is the safety valve against session leaks: when tracked
// sessions exceed it, the oldest half are discarded.
const HighWater = 100

type session struct {
	id SessionID
	// frames is the session-local monotonic counter; the session's output
	// timestamps are frames * frame duration, independent of every other
	// session.
	frames        uint64
	lastTimestamp int64
	seen          bool
}

// registry owns session lifecycle, keyed by SessionID in creation order.
type registry struct {
	mu        sync.Mutex
	sessions  map[SessionID]*session
	order     []SessionID
	highWater int
}

func newRegistry(highWater int) *registry {
	if highWater <= 0 {
		highWater = HighWater
	}
	return &registry{
		sessions:  make(map[SessionID]*session),
		highWater: highWater,
	}
}

// create registers a fresh session (counter at zero, no last-seen value)
// and prunes leaked ones if the high-water mark is exceeded. Returns the
// new session and how many were evicted.
func (r *registry) create() (*session, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &session{id: SessionID(uuid.NewString())}
	r.sessions[s.id] = s
	r.order = append(r.order, s.id)

	evicted := 0
	if len(r.sessions) > r.highWater {
		// Discard the oldest half of tracked sessions, sparing the one
		// just created.
		victims := r.order[:len(r.order)/2]
		kept := r.order[len(r.order)/2:]
		for _, id := range victims {
			if id == s.id {
				kept = append(kept, id)
				continue
			}
			delete(r.sessions, id)
			evicted++
		}
		r.order = append([]SessionID(nil), kept...)
	}
	return s, evicted
}

func (r *registry) get(id SessionID) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// remove discards the session's state. Returns false if it was already gone
// (e.g. evicted by the high-water prune).
func (r *registry) remove(id SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	for i, sid := range r.order {
		if sid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
