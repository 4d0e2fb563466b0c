package broadcast

import "context"

// StreamHandler is what a serving engine needs from the simulator:
// session lifecycle plus a per-session frame source. Implemented by
// Broadcaster.
type StreamHandler interface {
	Configure() SessionID
	NextUnit(id SessionID) (Unit, bool)
	Unprepared(id SessionID)
	Pushed(id SessionID, outcome PushOutcome)
}

// Engine serves the stream to clients. Serve blocks until the context is
// cancelled or the listener fails. Warmup runs frames through the encoder
// without any client attached.
type Engine interface {
	Serve(ctx context.Context) error
	Warmup(ctx context.Context, frames int, next func() []byte) error
}
