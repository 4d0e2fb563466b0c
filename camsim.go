package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/camloop/camsim/broadcast"
	"github.com/camloop/camsim/config"
	"github.com/camloop/camsim/event"
	"github.com/camloop/camsim/extract"
	"github.com/camloop/camsim/fetch"
	"github.com/camloop/camsim/frame"
	"github.com/camloop/camsim/metric"
	"github.com/camloop/camsim/pipeline"
	"github.com/camloop/camsim/rtsp"
	"github.com/camloop/camsim/source"
	"github.com/camloop/camsim/webcast"
)

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	return logger
}

func main() {
	configFile := flag.String("config", "config.yaml", "path to the YAML configuration")
	camName := flag.String("cam", "cam1", "camera to simulate")
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load(*configFile, *camName)
	if err != nil {
		logger.Fatal("configuration", zap.Error(err))
	}
	logger.Info("starting simulator",
		zap.String("camera", cfg.CameraName),
		zap.String("video", cfg.Video),
		zap.Int("fps", cfg.FPS),
		zap.Int("rtsp_port", cfg.RTSPPort))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := fetch.EnsureVideo(ctx, logger, cfg.Video, cfg.VideoURL, cfg.VideoMD5); err != nil {
		logger.Fatal("video", zap.Error(err))
	}

	clock, err := frame.NewClock(cfg.Timezone)
	if err != nil {
		logger.Warn("timezone unavailable, using UTC", zap.String("timezone", cfg.Timezone), zap.Error(err))
	}

	geom := frame.Geometry{
		CaptureWidth:  cfg.OriginalWidth,
		CaptureHeight: cfg.OriginalHeight,
		OutputWidth:   cfg.FrameWidth,
		OutputHeight:  cfg.FrameHeight,
		CodeSize:      cfg.QRCodeSize,
	}
	if err := geom.Validate(); err != nil {
		logger.Fatal("frame geometry", zap.Error(err))
	}

	stats := &metric.Stats{}
	registry := prometheus.NewRegistry()
	if err := stats.Register(registry); err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	p := pipeline.New(logger, stats, cfg.QueueSize)

	reader := source.NewReader(logger, stats, geom, clock,
		source.FFmpegStarter(cfg.Video, cfg.FPS), source.TimestampOverlay{}, p.Pairs())

	qr := extract.NewQRDecoder()
	defer qr.Close()
	extractor := extract.New(logger, stats, qr, p.Pairs(), p.Payloads(), p.Slot())

	dispatcher := event.NewDispatcher(logger, stats, cfg.APIURL, cfg.CameraName, p.Payloads())

	caster := broadcast.New(logger, stats, p.Slot(), cfg.FrameWidth, cfg.FrameHeight, cfg.FrameDuration())
	engine := rtsp.NewServer(logger, caster, cfg.RTSPPort, cfg.FrameDuration(),
		rtsp.NewX264Factory(cfg.FrameWidth, cfg.FrameHeight, cfg.FPS))

	// Warm the encoder before the listener opens so no session is served
	// ahead of warmup.
	caster.Warmup(ctx, engine, cfg.WarmupFrames)
	if err := engine.Start(ctx); err != nil {
		logger.Fatal("rtsp server", zap.Error(err))
	}

	stages := []pipeline.Stage{
		{Name: "source", Run: reader.Run},
		{Name: "extract", Run: extractor.Run},
		{Name: "dispatch", Run: dispatcher.Run},
		{Name: "rtsp", Run: func(ctx context.Context) {
			if err := engine.Serve(ctx); err != nil && ctx.Err() == nil {
				logger.Error("rtsp server", zap.Error(err))
			}
		}},
	}
	if cfg.PreviewPort > 0 {
		stages = append(stages, pipeline.Stage{Name: "webcast", Run: func(ctx context.Context) {
			addr := fmt.Sprintf(":%d", cfg.PreviewPort)
			if err := webcast.Run(ctx, addr, p.Slot(), stats, registry); err != nil && ctx.Err() == nil {
				logger.Error("webcast server", zap.Error(err))
			}
		}})
	}
	p.Start(ctx, stages...)

	<-ctx.Done()
	if p.Stop() {
		logger.Info("all finished")
	} else {
		logger.Warn("finished with stuck stages")
	}
}
