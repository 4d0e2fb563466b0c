package broadcast

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/camloop/camsim/frame"
	"github.com/camloop/camsim/metric"
)

func testBroadcaster(t *testing.T) (*Broadcaster, *Slot, *metric.Stats) {
	t.Helper()
	slot := &Slot{}
	stats := &metric.Stats{}
	b := New(zap.NewNop(), stats, slot, 4, 4, 100*time.Millisecond)
	return b, slot, stats
}

func solidFrame(t *testing.T, w, h int, fill byte, ts int64) *frame.Frame {
	t.Helper()
	data := bytes.Repeat([]byte{fill}, frame.Size(w, h))
	return &frame.Frame{Width: w, Height: h, Timestamp: ts, Data: data}
}

func TestSlotLatestEmpty(t *testing.T) {
	var s Slot
	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestSlotPublishReplaces(t *testing.T) {
	var s Slot
	s.Publish(solidFrame(t, 4, 4, 1, 10))
	s.Publish(solidFrame(t, 4, 4, 2, 20))
	f, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(20), f.Timestamp)
	assert.Equal(t, byte(2), f.Data[0])
}

// Concurrent readers must only ever observe whole frames, never a mix of
// two publishes.
func TestSlotNoTornFrames(t *testing.T) {
	var s Slot
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fill := byte(0)
		for {
			select {
			case <-done:
				return
			default:
			}
			fill++
			s.Publish(solidFrame(t, 8, 8, fill, int64(fill)))
		}
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				f, ok := s.Latest()
				if !ok {
					continue
				}
				first := f.Data[0]
				for _, b := range f.Data {
					if b != first {
						t.Error("observed torn frame")
						return
					}
				}
				if int64(first) != f.Timestamp {
					t.Error("frame data does not match its timestamp")
					return
				}
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()
}

// Three sessions connecting at different times after a single publish all
// start their counters at zero and serve the same frame content.
func TestLateJoinersShareLatestFrame(t *testing.T) {
	b, slot, _ := testBroadcaster(t)
	published := solidFrame(t, 4, 4, 7, 777)
	slot.Publish(published)

	var ids []SessionID
	for i := 0; i < 3; i++ {
		ids = append(ids, b.Configure())
		time.Sleep(time.Millisecond)
	}
	for _, id := range ids {
		u, ok := b.NextUnit(id)
		require.True(t, ok)
		assert.Equal(t, uint64(0), u.Seq)
		assert.Equal(t, time.Duration(0), u.PTS)
		assert.Equal(t, published.Data, u.Frame.Data)
		assert.Equal(t, int64(777), u.Frame.Timestamp)
	}
}

func TestSessionCountersIndependent(t *testing.T) {
	b, slot, _ := testBroadcaster(t)
	slot.Publish(solidFrame(t, 4, 4, 1, 1))

	first := b.Configure()
	for i := 0; i < 5; i++ {
		_, ok := b.NextUnit(first)
		require.True(t, ok)
	}
	second := b.Configure()
	u, ok := b.NextUnit(second)
	require.True(t, ok)
	assert.Equal(t, uint64(0), u.Seq)
	u, ok = b.NextUnit(first)
	require.True(t, ok)
	assert.Equal(t, uint64(5), u.Seq)
	assert.Equal(t, 500*time.Millisecond, u.PTS)
}

func TestNextUnitBlankBeforeFirstPublish(t *testing.T) {
	b, _, _ := testBroadcaster(t)
	id := b.Configure()
	u, ok := b.NextUnit(id)
	require.True(t, ok)
	assert.Equal(t, bytes.Repeat([]byte{0}, frame.Size(4, 4)), u.Frame.Data)
}

func TestUnpreparedStopsFeeding(t *testing.T) {
	b, slot, stats := testBroadcaster(t)
	slot.Publish(solidFrame(t, 4, 4, 1, 1))
	id := b.Configure()
	assert.Equal(t, int64(1), stats.Sessions.Load())
	b.Unprepared(id)
	assert.Equal(t, int64(0), stats.Sessions.Load())
	_, ok := b.NextUnit(id)
	assert.False(t, ok)
	// Second teardown is a no-op.
	b.Unprepared(id)
	assert.Equal(t, int64(0), stats.Sessions.Load())
}

func TestRegistryPrunesOldestHalf(t *testing.T) {
	r := newRegistry(10)
	var ids []SessionID
	for i := 0; i < 10; i++ {
		s, evicted := r.create()
		assert.Zero(t, evicted)
		ids = append(ids, s.id)
	}
	last, evicted := r.create()
	assert.Equal(t, 5, evicted)
	assert.Equal(t, 6, r.len())
	for _, id := range ids[:5] {
		_, ok := r.get(id)
		assert.False(t, ok, "oldest sessions should be gone")
	}
	for _, id := range ids[5:] {
		_, ok := r.get(id)
		assert.True(t, ok)
	}
	_, ok := r.get(last.id)
	assert.True(t, ok, "the just-created session must survive the prune")
}

func TestPushedAccounting(t *testing.T) {
	b, _, stats := testBroadcaster(t)
	id := b.Configure()
	b.Pushed(id, PushOK)
	b.Pushed(id, PushFlushing)
	b.Pushed(id, PushError)
	b.Pushed(id, PushError)
	assert.Equal(t, uint64(1), stats.FramesStreamed.Load())
	assert.Equal(t, uint64(1), stats.PushFlushing.Load())
	assert.Equal(t, uint64(2), stats.PushErrors.Load())
}

func TestFramesStreamedCountsDeliveriesNotPulls(t *testing.T) {
	b, slot, stats := testBroadcaster(t)
	slot.Publish(solidFrame(t, 4, 4, 1, 100))
	id := b.Configure()
	for i := 0; i < 3; i++ {
		_, ok := b.NextUnit(id)
		require.True(t, ok)
	}
	assert.Zero(t, stats.FramesStreamed.Load())
	b.Pushed(id, PushOK)
	b.Pushed(id, PushOK)
	b.Pushed(id, PushError)
	assert.Equal(t, uint64(2), stats.FramesStreamed.Load())
}

type stubEngine struct {
	frames [][]byte
	err    error
}

func (e *stubEngine) Serve(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (e *stubEngine) Warmup(ctx context.Context, frames int, next func() []byte) error {
	for i := 0; i < frames; i++ {
		e.frames = append(e.frames, next())
	}
	return e.err
}

func TestWarmupUsesLatestFrame(t *testing.T) {
	b, slot, _ := testBroadcaster(t)
	slot.Publish(solidFrame(t, 4, 4, 9, 9))
	eng := &stubEngine{}
	b.Warmup(context.Background(), eng, 3)
	require.Len(t, eng.frames, 3)
	for _, data := range eng.frames {
		assert.Equal(t, byte(9), data[0])
	}
}

func TestWarmupFailureIsNonFatal(t *testing.T) {
	b, _, _ := testBroadcaster(t)
	eng := &stubEngine{err: errors.New("encoder exploded")}
	assert.NotPanics(t, func() {
		b.Warmup(context.Background(), eng, 2)
	})
}

func TestWarmupFrameBlankFallback(t *testing.T) {
	b, _, _ := testBroadcaster(t)
	f := b.WarmupFrame()
	assert.Equal(t, frame.Size(4, 4), len(f.Data))
	assert.Equal(t, bytes.Repeat([]byte{0}, frame.Size(4, 4)), f.Data)
}
