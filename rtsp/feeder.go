package rtsp

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/camloop/camsim/broadcast"
)

// auSink delivers one encoded access unit with its presentation time.
type auSink func(au [][]byte, pts time.Duration) error

// feeder drives a single session: it paces frames from the handler into
// the encoder and forwards encoded access units to the sink. Frame pacing
// and encoder output run independently so a slow encoder cannot distort
// the tick rate.
type feeder struct {
	logger   *zap.Logger
	handler  broadcast.StreamHandler
	id       broadcast.SessionID
	enc      Encoder
	frameDur time.Duration
	sink     auSink
	pts      chan time.Duration
}

func newFeeder(logger *zap.Logger, handler broadcast.StreamHandler, id broadcast.SessionID, enc Encoder, frameDur time.Duration, sink auSink) *feeder {
	return &feeder{
		logger:   logger,
		handler:  handler,
		id:       id,
		enc:      enc,
		frameDur: frameDur,
		sink:     sink,
		pts:      make(chan time.Duration, 64),
	}
}

// run blocks until the context is cancelled, the handler stops serving the
// session or the encoder dies.
func (f *feeder) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go f.pump(ctx, cancel)
	f.send(ctx)
}

// pump ticks at the frame rate, fetching the session's next frame and
// pushing it into the encoder.
func (f *feeder) pump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	ticker := time.NewTicker(f.frameDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		u, ok := f.handler.NextUnit(f.id)
		if !ok {
			return
		}
		if err := f.enc.Write(u.Frame.Data); err != nil {
			f.handler.Pushed(f.id, broadcast.PushError)
			f.logger.Warn("encoder write failed", zap.String("session", string(f.id)), zap.Error(err))
			return
		}
		select {
		case f.pts <- u.PTS:
		case <-ctx.Done():
			return
		}
	}
}

// send matches encoded access units with their frame timestamps and hands
// them to the sink. zerolatency encoding keeps the two streams one-to-one.
func (f *feeder) send(ctx context.Context) {
	for {
		var au [][]byte
		var ok bool
		select {
		case <-ctx.Done():
			return
		case au, ok = <-f.enc.Units():
			if !ok {
				return
			}
		}
		var pts time.Duration
		select {
		case <-ctx.Done():
			return
		case pts = <-f.pts:
		}
		if err := f.sink(au, pts); err != nil {
			f.handler.Pushed(f.id, broadcast.PushError)
			f.logger.Warn("packet write failed", zap.String("session", string(f.id)), zap.Error(err))
			return
		}
		f.handler.Pushed(f.id, broadcast.PushOK)
	}
}
