// Package extract pulls event markers out of the code view of each frame
// and forwards them to the dispatcher, while publishing the primary view
// for streaming.
package extract

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/camloop/camsim/broadcast"
	"github.com/camloop/camsim/event"
	"github.com/camloop/camsim/frame"
	"github.com/camloop/camsim/metric"
)

// EnqueueTimeout bounds how long a decoded payload waits for the event
// queue before being dropped.
const EnqueueTimeout = 500 * time.Millisecond

// reportEvery is how many processed frames pass between decode-time
// reports.
const reportEvery = 100

// Decoder extracts the text of a machine-readable code from a frame.
// Empty text with nil error means no code was present.
type Decoder interface {
	Decode(f *frame.Frame) (string, error)
}

// Extractor consumes frame pairs, hands the primary view to the live
// slot and scans the code view for event payloads.
type Extractor struct {
	logger   *zap.Logger
	stats    *metric.Stats
	dec      Decoder
	pairs    <-chan frame.Pair
	payloads chan<- event.Payload
	slot     *broadcast.Slot
	window   *metric.Window
	scanned  uint64
}

func New(logger *zap.Logger, stats *metric.Stats, dec Decoder, pairs <-chan frame.Pair, payloads chan<- event.Payload, slot *broadcast.Slot) *Extractor {
	return &Extractor{
		logger:   logger,
		stats:    stats,
		dec:      dec,
		pairs:    pairs,
		payloads: payloads,
		slot:     slot,
		window:   &metric.Window{},
	}
}

// Run processes pairs until the context is cancelled or the input channel
// closes.
func (e *Extractor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-e.pairs:
			if !ok {
				return
			}
			e.handle(ctx, p)
		}
	}
}

func (e *Extractor) handle(ctx context.Context, p frame.Pair) {
	// The stream sees every frame whether or not a code decodes.
	e.slot.Publish(p.Primary)

	start := time.Now()
	text, err := e.dec.Decode(p.Code)
	e.window.Observe(time.Since(start))
	e.scanned++
	if e.scanned%reportEvery == 0 {
		e.report()
	}
	if err != nil {
		e.logger.Warn("code decode failed", zap.Error(err))
		return
	}
	if text == "" {
		return
	}
	e.stats.CodesDecoded.Add(1)

	payload := event.Payload{Raw: text, Timestamp: p.Code.Timestamp}
	var obj map[string]any
	if json.Unmarshal([]byte(text), &obj) == nil {
		payload.Object = obj
	}
	e.enqueue(ctx, payload)
}

// enqueue hands the payload to the dispatcher, dropping it if the queue
// stays full past the timeout. A slow backend must never stall frame
// processing.
func (e *Extractor) enqueue(ctx context.Context, p event.Payload) {
	t := time.NewTimer(EnqueueTimeout)
	defer t.Stop()
	select {
	case e.payloads <- p:
		e.stats.PayloadsQueued.Add(1)
	case <-t.C:
		e.stats.PayloadsLost.Add(1)
		e.logger.Warn("event queue full, payload dropped")
	case <-ctx.Done():
	}
}

func (e *Extractor) report() {
	min, avg, max, n := e.window.Take()
	if n == 0 {
		return
	}
	e.logger.Info("code scan timing",
		zap.Duration("min", min),
		zap.Duration("avg", avg),
		zap.Duration("max", max),
		zap.Int("pending_frames", len(e.pairs)),
		zap.Int("pending_payloads", len(e.payloads)),
		zap.Uint64("scanned", e.scanned))
}
