// Package source produces the capture frames: it loops the clip through
// ffmpeg at real-time pace, stamps each frame with the wall clock and
// splits it into its primary and code views.
package source

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/camloop/camsim/frame"
	"github.com/camloop/camsim/metric"
	"github.com/camloop/camsim/util"
)

// EnqueueTimeout bounds how long a finished pair waits for the processing
// queue before being dropped.
const EnqueueTimeout = 1 * time.Second

// restartDelay spaces out restarts when the decoder keeps dying
// immediately.
const restartDelay = 1 * time.Second

// Starter opens a raw BGR byte stream. The reader owns the returned
// stream and closes it when it ends or the context is cancelled.
type Starter func(ctx context.Context) (io.ReadCloser, error)

// Overlay stamps text onto a capture frame in place.
type Overlay interface {
	Draw(f *frame.Frame, text string)
}

// NopOverlay leaves frames untouched.
type NopOverlay struct{}

func (NopOverlay) Draw(*frame.Frame, string) {}

// Reader pulls capture frames from the byte stream and feeds pairs to the
// processing queue. The stream is restarted indefinitely if it ends.
type Reader struct {
	logger  *zap.Logger
	stats   *metric.Stats
	geom    frame.Geometry
	clock   *frame.Clock
	start   Starter
	overlay Overlay
	pairs   chan<- frame.Pair
	meter   *metric.FPSMeter
}

func NewReader(logger *zap.Logger, stats *metric.Stats, geom frame.Geometry, clock *frame.Clock, start Starter, overlay Overlay, pairs chan<- frame.Pair) *Reader {
	return &Reader{
		logger:  logger,
		stats:   stats,
		geom:    geom,
		clock:   clock,
		start:   start,
		overlay: overlay,
		pairs:   pairs,
		meter:   metric.NewFPSMeter(300),
	}
}

// Run reads frames until the context is cancelled. Stream failures are
// absorbed: the decoder is relaunched and counted, never fatal.
func (r *Reader) Run(ctx context.Context) {
	for ctx.Err() == nil {
		stream, err := r.start(ctx)
		if err != nil {
			r.logger.Error("video decoder failed to start", zap.Error(err))
			r.stats.SourceResets.Add(1)
			r.pause(ctx)
			continue
		}
		err = r.consume(ctx, stream)
		stream.Close()
		if ctx.Err() != nil {
			return
		}
		r.stats.SourceResets.Add(1)
		r.logger.Warn("video stream ended, restarting", zap.Error(err))
		r.pause(ctx)
	}
}

// consume reads full capture frames until the stream breaks.
func (r *Reader) consume(ctx context.Context, stream io.Reader) error {
	size := frame.Size(r.geom.CaptureWidth, r.geom.CaptureHeight)
	for ctx.Err() == nil {
		buf := make([]byte, size)
		if _, err := io.ReadFull(stream, buf); err != nil {
			return err
		}
		r.handle(ctx, buf)
	}
	return ctx.Err()
}

func (r *Reader) handle(ctx context.Context, buf []byte) {
	ts := r.clock.NowMillis()
	capture := &frame.Frame{
		Width:     r.geom.CaptureWidth,
		Height:    r.geom.CaptureHeight,
		Timestamp: ts,
		Data:      buf,
	}
	// Stamp before the split so both views carry the clock.
	r.overlay.Draw(capture, r.clock.FormatMillis(ts))

	pair, err := r.geom.Split(capture)
	if err != nil {
		r.logger.Error("frame split failed", zap.Error(err))
		return
	}
	r.stats.FramesRead.Add(1)
	if rate, ok := r.meter.Tick(); ok {
		r.logger.Info("capture rate", zap.Float64("fps", rate))
	}
	r.enqueue(ctx, pair)
}

// enqueue hands the pair downstream, dropping it if processing is stalled.
// Capture pace is set by the decoder; a full queue must never push back.
func (r *Reader) enqueue(ctx context.Context, p frame.Pair) {
	t := time.NewTimer(EnqueueTimeout)
	defer t.Stop()
	select {
	case r.pairs <- p:
	case <-t.C:
		r.stats.FramesDropped.Add(1)
		r.logger.Warn("processing queue full, frame dropped")
	case <-ctx.Done():
	}
}

func (r *Reader) pause(ctx context.Context) {
	util.SleepCtx(ctx, restartDelay)
}
