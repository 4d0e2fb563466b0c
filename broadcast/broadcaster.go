package broadcast

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/camloop/camsim/frame"
	"github.com/camloop/camsim/metric"
)

// Unit is one video frame handed to the serving engine for a single
// session. PTS advances with the session's own counter so that clients
// joining mid-stream still see timestamps starting near zero.
type Unit struct {
	Frame    *frame.Frame
	Seq      uint64
	PTS      time.Duration
	Duration time.Duration
}

// PushOutcome reports what the engine's send buffer did with a unit.
type PushOutcome int

const (
	PushOK PushOutcome = iota
	PushFlushing
	PushError
)

// Broadcaster owns session lifecycle and serves the latest live frame to
// each of them independently.
type Broadcaster struct {
	logger   *zap.Logger
	stats    *metric.Stats
	slot     *Slot
	reg      *registry
	frameDur time.Duration
	width    int
	height   int
	encMeter *metric.FPSMeter
}

func New(logger *zap.Logger, stats *metric.Stats, slot *Slot, width, height int, frameDur time.Duration) *Broadcaster {
	return &Broadcaster{
		logger:   logger,
		stats:    stats,
		slot:     slot,
		reg:      newRegistry(HighWater),
		frameDur: frameDur,
		width:    width,
		height:   height,
		encMeter: metric.NewFPSMeter(300),
	}
}

// Configure registers a new session and returns its identifier. The
// session's frame counter starts at zero regardless of how long the
// simulator has been running.
func (b *Broadcaster) Configure() SessionID {
	s, evicted := b.reg.create()
	b.stats.Sessions.Add(1)
	if evicted > 0 {
		b.stats.Sessions.Add(int64(-evicted))
		b.logger.Warn("pruned stale sessions", zap.Int("evicted", evicted))
	}
	b.logger.Info("session configured",
		zap.String("session", string(s.id)),
		zap.Int("active", b.reg.len()))
	return s.id
}

// NextUnit produces the session's next frame. Returns false when the
// session is unknown, which tells the engine to stop feeding it.
func (b *Broadcaster) NextUnit(id SessionID) (Unit, bool) {
	s, ok := b.reg.get(id)
	if !ok {
		return Unit{}, false
	}
	f, ok := b.slot.Latest()
	if !ok {
		f = frame.Blank(b.width, b.height, 0)
	}
	u := Unit{
		Frame:    f,
		Seq:      s.frames,
		PTS:      time.Duration(s.frames) * b.frameDur,
		Duration: b.frameDur,
	}
	s.frames++
	s.lastTimestamp = f.Timestamp
	s.seen = true
	return u, true
}

// Unprepared tears the session down. Safe to call for sessions already
// pruned by the high-water eviction.
func (b *Broadcaster) Unprepared(id SessionID) {
	if b.reg.remove(id) {
		b.stats.Sessions.Add(-1)
		b.logger.Info("session closed",
			zap.String("session", string(id)),
			zap.Int("active", b.reg.len()))
	}
}

// Pushed records what the engine's buffer did with a unit it was handed.
// A frame counts as streamed only once the engine confirms delivery.
func (b *Broadcaster) Pushed(id SessionID, outcome PushOutcome) {
	switch outcome {
	case PushOK:
		b.stats.FramesStreamed.Add(1)
		if rate, ok := b.encMeter.Tick(); ok {
			b.logger.Info("streaming rate", zap.Float64("fps", rate))
		}
	case PushFlushing:
		b.stats.PushFlushing.Add(1)
	case PushError:
		b.stats.PushErrors.Add(1)
		b.logger.Warn("push failed", zap.String("session", string(id)))
	}
}

// ActiveSessions reports how many sessions are currently tracked.
func (b *Broadcaster) ActiveSessions() int {
	return b.reg.len()
}

// WarmupFrame returns the latest live frame, or a zeroed one if the
// pipeline has not published yet.
func (b *Broadcaster) WarmupFrame() *frame.Frame {
	if f, ok := b.slot.Latest(); ok {
		return f
	}
	return frame.Blank(b.width, b.height, 0)
}

// Warmup pre-exercises the engine's encoder so the first real client does
// not pay x264 startup latency. Failure is logged and ignored.
func (b *Broadcaster) Warmup(ctx context.Context, eng Engine, frames int) {
	start := time.Now()
	err := eng.Warmup(ctx, frames, func() []byte {
		return b.WarmupFrame().Data
	})
	if err != nil {
		b.logger.Warn("encoder warmup failed", zap.Error(err))
		return
	}
	b.logger.Info("encoder warmed up",
		zap.Int("frames", frames),
		zap.Duration("took", time.Since(start)))
}
