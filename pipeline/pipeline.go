// Package pipeline owns the moving parts of the simulator: the queues
// between stages, the shared live frame slot, the counters, and the
// lifecycle of every stage goroutine.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/camloop/camsim/broadcast"
	"github.com/camloop/camsim/event"
	"github.com/camloop/camsim/frame"
	"github.com/camloop/camsim/metric"
)

const (
	// defaultPairDepth bounds frames waiting for code extraction when the
	// config does not say otherwise.
	defaultPairDepth = 10
	// payloadQueueDepth bounds decoded payloads waiting for dispatch.
	payloadQueueDepth = 100
	// stopGrace is how long Stop waits for stages to drain.
	stopGrace = 2 * time.Second
)

// Stage is one long-running pipeline goroutine. It must return when its
// context is cancelled.
type Stage struct {
	Name string
	Run  func(ctx context.Context)
}

// Pipeline wires the stages together and supervises them. A panic in any
// stage tears the whole pipeline down; the process either works fully or
// stops.
type Pipeline struct {
	logger   *zap.Logger
	stats    *metric.Stats
	pairs    chan frame.Pair
	payloads chan event.Payload
	slot     *broadcast.Slot

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(logger *zap.Logger, stats *metric.Stats, pairDepth int) *Pipeline {
	if pairDepth <= 0 {
		pairDepth = defaultPairDepth
	}
	return &Pipeline{
		logger:   logger,
		stats:    stats,
		pairs:    make(chan frame.Pair, pairDepth),
		payloads: make(chan event.Payload, payloadQueueDepth),
		slot:     &broadcast.Slot{},
	}
}

func (p *Pipeline) Pairs() chan frame.Pair       { return p.pairs }
func (p *Pipeline) Payloads() chan event.Payload { return p.payloads }
func (p *Pipeline) Slot() *broadcast.Slot        { return p.slot }

// Start launches the stages under a shared context derived from ctx.
func (p *Pipeline) Start(ctx context.Context, stages ...Stage) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, st := range stages {
		st := st
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer p.recover(st.Name)
			p.logger.Info("stage started", zap.String("stage", st.Name))
			st.Run(ctx)
			p.logger.Info("stage stopped", zap.String("stage", st.Name))
		}()
	}
}

// recover converts a stage panic into a full shutdown. A half-dead
// pipeline silently dropping data is worse than a dead process.
func (p *Pipeline) recover(name string) {
	if r := recover(); r != nil {
		p.stats.StageFaults.Add(1)
		p.logger.Error("stage panicked",
			zap.String("stage", name),
			zap.Any("panic", r))
		p.cancel()
	}
}

// Stop cancels the stages and waits up to the grace period. Returns false
// if some stage failed to drain in time.
func (p *Pipeline) Stop() bool {
	if p.cancel == nil {
		return true
	}
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(stopGrace):
		p.logger.Warn("stages did not drain before deadline")
		return false
	}
}
