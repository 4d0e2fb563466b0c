package event

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/camloop/camsim/metric"
)

// DispatchTimeout bounds every outbound call. Events are best-effort:
// a slow backend loses events rather than stalling the pipeline.
const DispatchTimeout = 500 * time.Millisecond

// Dispatcher drains the payload queue and performs one synchronous POST
// per event. No outcome is retried or escalated; every outcome is counted.
type Dispatcher struct {
	logger  *zap.Logger
	stats   *metric.Stats
	client  *http.Client
	apiBase string
	device  string
	builder *Builder
	queue   <-chan Payload
}

func NewDispatcher(logger *zap.Logger, stats *metric.Stats, apiBase, cameraName string, queue <-chan Payload) *Dispatcher {
	device := ResolveDevice(cameraName)
	if device == SentinelDeviceID {
		logger.Warn("camera has no device mapping, using sentinel",
			zap.String("camera", cameraName),
			zap.String("device", device))
	}
	return &Dispatcher{
		logger:  logger,
		stats:   stats,
		client:  &http.Client{Timeout: DispatchTimeout},
		apiBase: strings.TrimRight(apiBase, "/"),
		device:  device,
		builder: NewBuilder(),
		queue:   queue,
	}
}

// Device returns the device id resolved at construction.
func (d *Dispatcher) Device() string { return d.device }

// ActiveTransaction exposes the current transaction id (observability only).
func (d *Dispatcher) ActiveTransaction() string { return d.builder.ActiveTransaction() }

// Run consumes payloads until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started",
		zap.String("api", d.apiBase),
		zap.String("device", d.device))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case p := <-d.queue:
			d.handle(ctx, p)
		}
	}
}

// handle maps one payload to an event and posts it. Malformed or unknown
// payloads are absorbed: counted, never dispatched, and the active
// transaction is left untouched.
func (d *Dispatcher) handle(ctx context.Context, p Payload) {
	wire, err := ParseWire(p.Raw)
	if err != nil {
		d.stats.EventsMalformed.Add(1)
		return
	}
	kind := KindFromCode(wire.KindCode)
	if kind == KindUnknown {
		d.stats.EventsUnknown.Add(1)
		d.logger.Debug("unknown event kind", zap.Int("code", wire.KindCode))
		return
	}
	body, ok := d.builder.Build(kind, p.Timestamp)
	if !ok {
		d.stats.EventsUnknown.Add(1)
		return
	}
	if err := d.post(ctx, kind, body); err != nil {
		if isTimeout(err) {
			d.stats.EventsTimeout.Add(1)
			d.logger.Warn("event dispatch timeout", zap.Stringer("kind", kind))
		} else {
			d.stats.EventsFailed.Add(1)
			d.logger.Warn("event dispatch failed", zap.Stringer("kind", kind), zap.Error(err))
		}
		return
	}
	d.stats.EventsSent.Add(1)
}

func (d *Dispatcher) post(ctx context.Context, kind Kind, body Body) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", kind, err)
	}
	target := fmt.Sprintf("%s/events/%s/%s", d.apiBase, d.device, kind.Path())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend returned %s", resp.Status)
	}
	return nil
}

func isTimeout(err error) bool {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Timeout()
	}
	return false
}
