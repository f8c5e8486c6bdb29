// Package metrics holds the client's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "travelvoice"

// Metrics contains all Prometheus metrics for the voice client
type Metrics struct {
	// Capture metrics
	CaptureSessions *prometheus.CounterVec

	// Dispatch metrics
	DispatchRequests *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	// Playback metrics
	PlaybackReplies  *prometheus.CounterVec
	PlaybackSegments *prometheus.CounterVec
	SegmentFetch     prometheus.Histogram

	// Backend connectivity
	BackendUp prometheus.Gauge
}

// New creates and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CaptureSessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_sessions_total",
			Help:      "Capture sessions by strategy and how they ended",
		}, []string{"strategy", "outcome"}),
		DispatchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_requests_total",
			Help:      "Messages sent to the backend by kind and outcome",
		}, []string{"kind", "outcome"}),
		DispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Round trip of a message to the backend",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}, []string{"kind"}),
		PlaybackReplies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_replies_total",
			Help:      "Replies spoken by synthesis backend and outcome",
		}, []string{"backend", "outcome"}),
		PlaybackSegments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_segments_total",
			Help:      "Sentence segments by outcome",
		}, []string{"outcome"}),
		SegmentFetch: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "playback_segment_fetch_seconds",
			Help:      "Time to fetch synthesized audio for one sentence",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		BackendUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_up",
			Help:      "1 when the last health check succeeded",
		}),
	}
}

func (m *Metrics) CaptureEnded(strategy, outcome string) {
	if m == nil {
		return
	}
	m.CaptureSessions.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) Dispatched(kind string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.DispatchRequests.WithLabelValues(kind, outcome(err)).Inc()
	m.DispatchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) ReplySpoken(backend, outcome string) {
	if m == nil {
		return
	}
	m.PlaybackReplies.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) SegmentFetched(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.PlaybackSegments.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.SegmentFetch.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) SetBackendUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.BackendUp.Set(1)
		return
	}
	m.BackendUp.Set(0)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
