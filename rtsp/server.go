// Package rtsp serves the simulated camera over RTSP. Every client session
// gets its own encoder and its own timeline starting at zero, fed from the
// shared live frame.
package rtsp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/pion/rtp"
	"go.uber.org/zap"

	"github.com/camloop/camsim/broadcast"
)

// StreamPath is the mount point clients request.
const StreamPath = "/simulation"

const rtpClockRate = 90000

// stamp writes the access unit's presentation time into every packet in
// RTP clock units.
func stamp(pkts []*rtp.Packet, pts time.Duration) {
	ts := uint32(uint64(pts) * rtpClockRate / uint64(time.Second))
	for _, pkt := range pkts {
		pkt.Timestamp = ts
	}
}

// Server implements broadcast.Engine on top of a gortsplib server.
type Server struct {
	logger     *zap.Logger
	handler    broadcast.StreamHandler
	address    string
	frameDur   time.Duration
	newEncoder EncoderFactory

	srv        *gortsplib.Server
	descStream *gortsplib.ServerStream
	ctx        context.Context

	mu       sync.Mutex
	sessions map[*gortsplib.ServerSession]*liveSession
}

// liveSession ties a transport-level session to its simulator state.
type liveSession struct {
	id      broadcast.SessionID
	media   *description.Media
	stream  *gortsplib.ServerStream
	cancel  context.CancelFunc
	playing bool
}

func NewServer(logger *zap.Logger, handler broadcast.StreamHandler, port int, frameDur time.Duration, newEncoder EncoderFactory) *Server {
	return &Server{
		logger:     logger,
		handler:    handler,
		address:    fmt.Sprintf(":%d", port),
		frameDur:   frameDur,
		newEncoder: newEncoder,
		sessions:   make(map[*gortsplib.ServerSession]*liveSession),
	}
}

// newDesc builds a fresh one-media H.264 description. Parameter sets are
// carried in-band, so the SDP needs none.
func newDesc() (*description.Session, *description.Media) {
	medi := &description.Media{
		Type: description.MediaTypeVideo,
		Formats: []format.Format{&format.H264{
			PayloadTyp:        96,
			PacketizationMode: 1,
		}},
	}
	return &description.Session{Medias: []*description.Media{medi}}, medi
}

// Start binds the listener. Called after warmup and before the pipeline
// spins up, so that a bad port is a startup failure, not a runtime one.
// The context is adopted here, before the first session can possibly run,
// so session goroutines never race a later write.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = ctx
	s.srv = &gortsplib.Server{
		Handler:     s,
		RTSPAddress: s.address,
	}
	if err := s.srv.Start(); err != nil {
		return fmt.Errorf("start rtsp server: %w", err)
	}

	desc, _ := newDesc()
	s.descStream = &gortsplib.ServerStream{Server: s.srv, Desc: desc}
	if err := s.descStream.Initialize(); err != nil {
		s.srv.Close()
		return fmt.Errorf("init describe stream: %w", err)
	}

	s.logger.Info("rtsp server listening",
		zap.String("address", s.address),
		zap.String("path", StreamPath))
	return nil
}

// Serve runs the listener until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.srv == nil {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		s.descStream.Close()
		s.srv.Close()
	}()
	err := s.srv.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Warmup runs frames through a throwaway encoder so that the first real
// session does not pay x264 startup cost.
func (s *Server) Warmup(ctx context.Context, frames int, next func() []byte) error {
	enc, err := s.newEncoder(ctx)
	if err != nil {
		return fmt.Errorf("warmup encoder: %w", err)
	}
	drained := make(chan struct{})
	go func() {
		for range enc.Units() {
		}
		close(drained)
	}()
	for i := 0; i < frames; i++ {
		if err := enc.Write(next()); err != nil {
			enc.Close()
			return fmt.Errorf("warmup frame %d: %w", i, err)
		}
	}
	enc.Close()
	<-drained
	return nil
}

func (s *Server) OnConnOpen(ctx *gortsplib.ServerHandlerOnConnOpenCtx) {
	s.logger.Info("client connected", zap.String("remote", ctx.Conn.NetConn().RemoteAddr().String()))
}

func (s *Server) OnConnClose(ctx *gortsplib.ServerHandlerOnConnCloseCtx) {
	s.logger.Info("client disconnected", zap.String("remote", ctx.Conn.NetConn().RemoteAddr().String()))
}

func (s *Server) OnDescribe(ctx *gortsplib.ServerHandlerOnDescribeCtx) (*base.Response, *gortsplib.ServerStream, error) {
	if ctx.Path != StreamPath {
		return &base.Response{StatusCode: base.StatusNotFound}, nil, nil
	}
	return &base.Response{StatusCode: base.StatusOK}, s.descStream, nil
}

func (s *Server) OnSetup(ctx *gortsplib.ServerHandlerOnSetupCtx) (*base.Response, *gortsplib.ServerStream, error) {
	if ctx.Path != StreamPath {
		return &base.Response{StatusCode: base.StatusNotFound}, nil, nil
	}
	ls, err := s.attach(ctx.Session)
	if err != nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}, nil, err
	}
	return &base.Response{StatusCode: base.StatusOK}, ls.stream, nil
}

func (s *Server) OnPlay(ctx *gortsplib.ServerHandlerOnPlayCtx) (*base.Response, error) {
	s.mu.Lock()
	ls, ok := s.sessions[ctx.Session]
	if !ok || ls.playing {
		s.mu.Unlock()
		return &base.Response{StatusCode: base.StatusOK}, nil
	}
	ls.playing = true
	s.mu.Unlock()

	if err := s.startFeeder(ls); err != nil {
		s.logger.Error("session start failed", zap.String("session", string(ls.id)), zap.Error(err))
		return &base.Response{StatusCode: base.StatusInternalServerError}, err
	}
	return &base.Response{StatusCode: base.StatusOK}, nil
}

func (s *Server) OnSessionClose(ctx *gortsplib.ServerHandlerOnSessionCloseCtx) {
	s.detach(ctx.Session)
}

// attach registers the transport session with the simulator and gives it
// its own stream.
func (s *Server) attach(session *gortsplib.ServerSession) (*liveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ls, ok := s.sessions[session]; ok {
		return ls, nil
	}
	desc, medi := newDesc()
	stream := &gortsplib.ServerStream{Server: s.srv, Desc: desc}
	if err := stream.Initialize(); err != nil {
		return nil, fmt.Errorf("init session stream: %w", err)
	}
	ls := &liveSession{
		id:     s.handler.Configure(),
		media:  medi,
		stream: stream,
	}
	s.sessions[session] = ls
	return ls, nil
}

func (s *Server) startFeeder(ls *liveSession) error {
	fctx, cancel := context.WithCancel(s.ctx)
	enc, err := s.newEncoder(fctx)
	if err != nil {
		cancel()
		return fmt.Errorf("session encoder: %w", err)
	}
	ls.cancel = cancel

	rtpEnc, err := ls.media.Formats[0].(*format.H264).CreateEncoder()
	if err != nil {
		cancel()
		enc.Close()
		return fmt.Errorf("rtp encoder: %w", err)
	}
	sink := func(au [][]byte, pts time.Duration) error {
		pkts, err := rtpEnc.Encode(au)
		if err != nil {
			return err
		}
		stamp(pkts, pts)
		for _, pkt := range pkts {
			if err := ls.stream.WritePacketRTP(ls.media, pkt); err != nil {
				return err
			}
		}
		return nil
	}

	f := newFeeder(s.logger, s.handler, ls.id, enc, s.frameDur, sink)
	go func() {
		defer enc.Close()
		f.run(fctx)
	}()
	return nil
}

func (s *Server) detach(session *gortsplib.ServerSession) {
	s.mu.Lock()
	ls, ok := s.sessions[session]
	delete(s.sessions, session)
	s.mu.Unlock()
	if !ok {
		return
	}
	if ls.cancel != nil {
		ls.cancel()
	}
	ls.stream.Close()
	s.handler.Unprepared(ls.id)
}
