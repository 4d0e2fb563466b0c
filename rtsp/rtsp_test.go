package rtsp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/camloop/camsim/broadcast"
	"github.com/camloop/camsim/frame"
)

// annexb builds a byte stream from NALUs, alternating 4- and 3-byte start
// codes the way x264 does.
func annexb(nalus ...[]byte) []byte {
	var out []byte
	for i, n := range nalus {
		if i == 0 {
			out = append(out, 0, 0, 0, 1)
		} else {
			out = append(out, 0, 0, 1)
		}
		out = append(out, n...)
	}
	return out
}

var (
	naluAUD = []byte{0x09, 0xF0}
	naluSPS = []byte{0x67, 0x42, 0x00, 0x1F}
	naluPPS = []byte{0x68, 0xCE, 0x38, 0x80}
	naluIDR = []byte{0x65, 0x88, 0x84, 0x21}
	naluP   = []byte{0x41, 0x9A, 0x22, 0x11}
)

func TestSplitterSegmentsOnDelimiters(t *testing.T) {
	var s auSplitter
	var aus [][][]byte
	emit := func(au [][]byte) { aus = append(aus, au) }

	stream := annexb(naluAUD, naluSPS, naluPPS, naluIDR, naluAUD, naluP, naluAUD, naluP)
	s.Push(stream, emit)
	s.Flush(emit)

	require.Len(t, aus, 3)
	assert.Equal(t, [][]byte{naluSPS, naluPPS, naluIDR}, aus[0])
	assert.Equal(t, [][]byte{naluP}, aus[1])
	assert.Equal(t, [][]byte{naluP}, aus[2])
}

func TestSplitterHandlesArbitraryChunking(t *testing.T) {
	stream := annexb(naluAUD, naluSPS, naluPPS, naluIDR, naluAUD, naluP)
	for _, chunk := range []int{1, 2, 3, 5, len(stream)} {
		var s auSplitter
		var aus [][][]byte
		emit := func(au [][]byte) { aus = append(aus, au) }
		for i := 0; i < len(stream); i += chunk {
			end := i + chunk
			if end > len(stream) {
				end = len(stream)
			}
			s.Push(stream[i:end], emit)
		}
		s.Flush(emit)
		require.Len(t, aus, 2, "chunk size %d", chunk)
		assert.Equal(t, [][]byte{naluSPS, naluPPS, naluIDR}, aus[0])
		assert.Equal(t, [][]byte{naluP}, aus[1])
	}
}

func TestSplitterTrimsFourByteStartCodePadding(t *testing.T) {
	var s auSplitter
	var aus [][][]byte
	// Every start code 4 bytes: each NALU is followed by a zero that
	// belongs to the next start code.
	stream := []byte{}
	for _, n := range [][]byte{naluAUD, naluIDR, naluAUD, naluP} {
		stream = append(stream, 0, 0, 0, 1)
		stream = append(stream, n...)
	}
	s.Push(stream, func(au [][]byte) { aus = append(aus, au) })
	s.Flush(func(au [][]byte) { aus = append(aus, au) })
	require.Len(t, aus, 2)
	assert.Equal(t, [][]byte{naluIDR}, aus[0])
	assert.Equal(t, [][]byte{naluP}, aus[1])
}

func TestSplitterNoDelimiterNoEmitUntilFlush(t *testing.T) {
	var s auSplitter
	var aus [][][]byte
	s.Push(annexb(naluSPS, naluPPS, naluIDR), func(au [][]byte) { aus = append(aus, au) })
	assert.Empty(t, aus)
	s.Flush(func(au [][]byte) { aus = append(aus, au) })
	require.Len(t, aus, 1)
	assert.Equal(t, [][]byte{naluSPS, naluPPS, naluIDR}, aus[0])
}

func TestStampConvertsToRTPClock(t *testing.T) {
	pkts := []*rtp.Packet{{}, {}}
	stamp(pkts, 500*time.Millisecond)
	for _, pkt := range pkts {
		assert.Equal(t, uint32(45000), pkt.Timestamp)
	}
}

// stubEncoder records written frames and lets the test inject access
// units as if they came out of the codec.
type stubEncoder struct {
	mu     sync.Mutex
	frames [][]byte
	units  chan [][]byte
	err    error
}

func newStubEncoder() *stubEncoder {
	return &stubEncoder{units: make(chan [][]byte, 16)}
}

func (e *stubEncoder) Write(raw []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.frames = append(e.frames, raw)
	// One frame in, one AU out.
	e.units <- [][]byte{naluP}
	return nil
}

func (e *stubEncoder) Units() <-chan [][]byte { return e.units }
func (e *stubEncoder) Close() error           { return nil }

func (e *stubEncoder) written() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.frames)
}

// stubHandler serves a fixed frame with session-local counters.
type stubHandler struct {
	mu       sync.Mutex
	frameDur time.Duration
	counters map[broadcast.SessionID]uint64
	gone     map[broadcast.SessionID]bool
	outcomes []broadcast.PushOutcome
	next     int
}

func newStubHandler(frameDur time.Duration) *stubHandler {
	return &stubHandler{
		frameDur: frameDur,
		counters: make(map[broadcast.SessionID]uint64),
		gone:     make(map[broadcast.SessionID]bool),
	}
}

func (h *stubHandler) Configure() broadcast.SessionID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := broadcast.SessionID(string(rune('a' + h.next)))
	h.counters[id] = 0
	return id
}

func (h *stubHandler) NextUnit(id broadcast.SessionID) (broadcast.Unit, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gone[id] {
		return broadcast.Unit{}, false
	}
	n := h.counters[id]
	h.counters[id]++
	return broadcast.Unit{
		Frame:    frame.Blank(2, 2, int64(n)),
		Seq:      n,
		PTS:      time.Duration(n) * h.frameDur,
		Duration: h.frameDur,
	}, true
}

func (h *stubHandler) Unprepared(id broadcast.SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gone[id] = true
}

func (h *stubHandler) Pushed(id broadcast.SessionID, o broadcast.PushOutcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcomes = append(h.outcomes, o)
}

func TestServerAdoptsContextAtStart(t *testing.T) {
	h := newStubHandler(10 * time.Millisecond)
	factory := func(context.Context) (Encoder, error) { return newStubEncoder(), nil }
	s := NewServer(zap.NewNop(), h, 0, 10*time.Millisecond, factory)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	defer cancel()

	// Session feeders derive from this context, so it must be in place
	// the moment the listener opens, not when Serve is entered.
	assert.Same(t, ctx, s.ctx)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop on cancellation")
	}
}

func TestFeederPacesAndStampsPTS(t *testing.T) {
	h := newStubHandler(10 * time.Millisecond)
	id := h.Configure()
	enc := newStubEncoder()

	var mu sync.Mutex
	var got []time.Duration
	sink := func(au [][]byte, pts time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, pts)
		return nil
	}

	f := newFeeder(zap.NewNop(), h, id, enc, 10*time.Millisecond, sink)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { f.run(ctx); close(done) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 4
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	for i, pts := range got[:4] {
		assert.Equal(t, time.Duration(i)*10*time.Millisecond, pts)
	}
	assert.GreaterOrEqual(t, enc.written(), 4)
}

func TestFeederStopsWhenSessionGone(t *testing.T) {
	h := newStubHandler(5 * time.Millisecond)
	id := h.Configure()
	h.Unprepared(id)
	enc := newStubEncoder()

	f := newFeeder(zap.NewNop(), h, id, enc, 5*time.Millisecond, func([][]byte, time.Duration) error { return nil })
	done := make(chan struct{})
	go func() { f.run(context.Background()); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feeder kept running for a torn-down session")
	}
	assert.Zero(t, enc.written())
}

func TestFeederReportsSinkFailure(t *testing.T) {
	h := newStubHandler(5 * time.Millisecond)
	id := h.Configure()
	enc := newStubEncoder()

	f := newFeeder(zap.NewNop(), h, id, enc, 5*time.Millisecond, func([][]byte, time.Duration) error {
		return errors.New("transport gone")
	})
	done := make(chan struct{})
	go func() { f.run(context.Background()); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feeder did not stop on sink failure")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.outcomes)
	assert.Equal(t, broadcast.PushError, h.outcomes[len(h.outcomes)-1])
}
