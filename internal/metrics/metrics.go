// ABOUTME: Prometheus metrics for the audio pipeline
// ABOUTME: Counters and gauges on a private registry; nil receivers are no-ops
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for streamtap
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion metrics
	MessagesReceived  prometheus.Counter
	MessagesIgnored   prometheus.Counter
	MessagesMalformed prometheus.Counter
	ChunksDecoded     prometheus.Counter
	ChunksDropped     prometheus.Counter

	// Playback metrics
	Submissions        prometheus.Counter
	SubmissionFailures prometheus.Counter
	CatchUps           prometheus.Counter
	ScheduleLead       prometheus.Gauge

	// Recorder metrics
	SegmentsEmitted prometheus.Counter
	SegmentBytes    prometheus.Histogram
	EncoderErrors   prometheus.Counter

	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsStopped prometheus.Counter
	SessionState    *prometheus.GaugeVec
}

// New creates and registers all metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		MessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "streamtap_messages_received_total",
			Help: "Total number of transport records received",
		}),
		MessagesIgnored: f.NewCounter(prometheus.CounterOpts{
			Name: "streamtap_messages_ignored_total",
			Help: "Total number of records without an audio payload",
		}),
		MessagesMalformed: f.NewCounter(prometheus.CounterOpts{
			Name: "streamtap_messages_malformed_total",
			Help: "Total number of records that could not be parsed",
		}),
		ChunksDecoded: f.NewCounter(prometheus.CounterOpts{
			Name: "streamtap_chunks_decoded_total",
			Help: "Total number of audio chunks decoded",
		}),
		ChunksDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "streamtap_chunks_dropped_total",
			Help: "Total number of chunks dropped as undersized or undecodable",
		}),

		Submissions: f.NewCounter(prometheus.CounterOpts{
			Name: "streamtap_playback_submissions_total",
			Help: "Total number of buffers scheduled for playback",
		}),
		SubmissionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "streamtap_playback_submission_failures_total",
			Help: "Total number of playback submissions that failed",
		}),
		CatchUps: f.NewCounter(prometheus.CounterOpts{
			Name: "streamtap_playback_catchups_total",
			Help: "Total number of times the playback cursor snapped forward to now",
		}),
		ScheduleLead: f.NewGauge(prometheus.GaugeOpts{
			Name: "streamtap_playback_lead_seconds",
			Help: "Audio scheduled ahead of the device clock",
		}),

		SegmentsEmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "streamtap_segments_emitted_total",
			Help: "Total number of recorded segments emitted",
		}),
		SegmentBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamtap_segment_bytes",
			Help:    "Size of recorded segments in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10),
		}),
		EncoderErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "streamtap_encoder_errors_total",
			Help: "Total number of segment encode failures",
		}),

		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "streamtap_sessions_started_total",
			Help: "Total number of sessions prepared",
		}),
		SessionsStopped: f.NewCounter(prometheus.CounterOpts{
			Name: "streamtap_sessions_stopped_total",
			Help: "Total number of sessions stopped",
		}),
		SessionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamtap_session_state",
			Help: "1 for the current session state, 0 otherwise",
		}, []string{"state"}),
	}
}

// Registry returns the registry metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetState marks state as the current session state
func (m *Metrics) SetState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.SessionState.WithLabelValues(s).Set(v)
	}
}

// ObserveSegment records a successfully emitted segment
func (m *Metrics) ObserveSegment(bytes int) {
	if m == nil {
		return
	}
	m.SegmentsEmitted.Inc()
	m.SegmentBytes.Observe(float64(bytes))
}

// SetLead records how far playback is scheduled ahead
func (m *Metrics) SetLead(seconds float64) {
	if m == nil {
		return
	}
	m.ScheduleLead.Set(seconds)
}
