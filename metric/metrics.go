// Package metric holds the pipeline counters. The counters are explicit
// state owned by the lifecycle controller and passed by handle to each
// stage; Prometheus collectors read them lazily so the hot paths stay on
// plain atomics.
package metric

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is the shared counter block. All fields are safe for concurrent use.
type Stats struct {
	FramesRead     atomic.Uint64 // captures decoded by the frame source
	FramesDropped  atomic.Uint64 // decode queue full, frame discarded
	CodesDecoded   atomic.Uint64 // optical codes successfully decoded
	PayloadsQueued atomic.Uint64 // payloads handed to the dispatcher
	PayloadsLost   atomic.Uint64 // event queue full, payload discarded

	EventsSent      atomic.Uint64 // outbound POSTs acknowledged 2xx
	EventsMalformed atomic.Uint64 // payload field count != 4
	EventsUnknown   atomic.Uint64 // kind code outside 0..7
	EventsTimeout   atomic.Uint64 // outbound POST hit the dispatch timeout
	EventsFailed    atomic.Uint64 // transport or non-2xx failures

	FramesStreamed atomic.Uint64 // units pushed to the media engine
	PushFlushing   atomic.Uint64 // pushes rejected while a session drains
	PushErrors     atomic.Uint64 // pushes failed outright

	Sessions     atomic.Int64 // live broadcaster sessions
	SourceResets atomic.Uint64
	StageFaults  atomic.Uint64 // panics escaping a stage main loop
}

// Snapshot is a point-in-time copy of the counters, JSON-ready for the
// ops endpoint.
type Snapshot struct {
	FramesRead      uint64 `json:"frames_read"`
	FramesDropped   uint64 `json:"frames_dropped"`
	CodesDecoded    uint64 `json:"codes_decoded"`
	PayloadsQueued  uint64 `json:"payloads_queued"`
	PayloadsLost    uint64 `json:"payloads_lost"`
	EventsSent      uint64 `json:"events_sent"`
	EventsMalformed uint64 `json:"events_malformed"`
	EventsUnknown   uint64 `json:"events_unknown"`
	EventsTimeout   uint64 `json:"events_timeout"`
	EventsFailed    uint64 `json:"events_failed"`
	FramesStreamed  uint64 `json:"frames_streamed"`
	PushFlushing    uint64 `json:"push_flushing"`
	PushErrors      uint64 `json:"push_errors"`
	Sessions        int64  `json:"sessions"`
	SourceResets    uint64 `json:"source_resets"`
	StageFaults     uint64 `json:"stage_faults"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		FramesRead:      s.FramesRead.Load(),
		FramesDropped:   s.FramesDropped.Load(),
		CodesDecoded:    s.CodesDecoded.Load(),
		PayloadsQueued:  s.PayloadsQueued.Load(),
		PayloadsLost:    s.PayloadsLost.Load(),
		EventsSent:      s.EventsSent.Load(),
		EventsMalformed: s.EventsMalformed.Load(),
		EventsUnknown:   s.EventsUnknown.Load(),
		EventsTimeout:   s.EventsTimeout.Load(),
		EventsFailed:    s.EventsFailed.Load(),
		FramesStreamed:  s.FramesStreamed.Load(),
		PushFlushing:    s.PushFlushing.Load(),
		PushErrors:      s.PushErrors.Load(),
		Sessions:        s.Sessions.Load(),
		SourceResets:    s.SourceResets.Load(),
		StageFaults:     s.StageFaults.Load(),
	}
}

// Register wires the counter block into a Prometheus registry.
func (s *Stats) Register(reg prometheus.Registerer) error {
	counter := func(name, help string, v *atomic.Uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "camsim",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v.Load()) })
	}
	collectors := []prometheus.Collector{
		counter("frames_read_total", "Captures decoded by the frame source", &s.FramesRead),
		counter("frames_dropped_total", "Frames dropped on a full decode queue", &s.FramesDropped),
		counter("codes_decoded_total", "Optical codes decoded", &s.CodesDecoded),
		counter("payloads_queued_total", "Payloads handed to the dispatcher", &s.PayloadsQueued),
		counter("payloads_lost_total", "Payloads dropped on a full event queue", &s.PayloadsLost),
		counter("events_sent_total", "Outbound events acknowledged", &s.EventsSent),
		counter("events_malformed_total", "Payloads dropped as malformed", &s.EventsMalformed),
		counter("events_unknown_total", "Payloads dropped with unknown kind", &s.EventsUnknown),
		counter("events_timeout_total", "Outbound events that timed out", &s.EventsTimeout),
		counter("events_failed_total", "Outbound events that failed in transport", &s.EventsFailed),
		counter("frames_streamed_total", "Units pushed to the media engine", &s.FramesStreamed),
		counter("push_flushing_total", "Pushes rejected by draining sessions", &s.PushFlushing),
		counter("push_errors_total", "Pushes failed outright", &s.PushErrors),
		counter("source_resets_total", "Decoder process restarts", &s.SourceResets),
		counter("stage_faults_total", "Panics escaping a stage main loop", &s.StageFaults),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "camsim",
			Name:      "sessions",
			Help:      "Live broadcaster sessions",
		}, func() float64 { return float64(s.Sessions.Load()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
