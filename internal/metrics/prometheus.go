package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Link state values exported through the link state gauge
const (
	LinkStateNone       = 0
	LinkStateConnecting = 1
	LinkStateOpen       = 2
	LinkStateClosed     = 3
	LinkStateErrored    = 4
)

// Metrics contains all Prometheus metrics for the visualizer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Render loop metrics
	FramesRendered prometheus.Counter
	FrameErrors    prometheus.Counter
	FrameDuration  prometheus.Histogram
	BassEnergy     prometheus.Gauge

	// Session metrics
	SessionsStarted *prometheus.CounterVec
	SessionFailures *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Chunk metrics
	ChunksProduced prometheus.Counter
	ChunksSent     prometheus.Counter
	ChunksDropped  prometheus.Counter
	ChunkSize      prometheus.Histogram

	// Transcription link metrics
	LinkState           prometheus.Gauge
	TranscriptsReceived prometheus.Counter
	LinkErrors          prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// A nil registerer uses the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FramesRendered: factory.NewCounter(prometheus.CounterOpts{
			Name: "resonance_frames_rendered_total",
			Help: "Total number of frames painted by the render loop",
		}),
		FrameErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "resonance_frame_errors_total",
			Help: "Total number of frames that failed and were skipped",
		}),
		FrameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "resonance_frame_duration_seconds",
			Help:    "Time spent painting a frame",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms to ~250ms
		}),
		BassEnergy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "resonance_bass_energy",
			Help: "Bass energy of the most recent frame (0-255)",
		}),

		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resonance_sessions_started_total",
			Help: "Total number of audio sessions started",
		}, []string{"kind"}),
		SessionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resonance_session_failures_total",
			Help: "Total number of audio sessions that failed to start",
		}, []string{"kind", "reason"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "resonance_session_duration_seconds",
			Help:    "Lifetime of audio sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		ChunksProduced: factory.NewCounter(prometheus.CounterOpts{
			Name: "resonance_chunks_produced_total",
			Help: "Total number of audio chunks produced by the chunker",
		}),
		ChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "resonance_chunks_sent_total",
			Help: "Total number of audio chunks transmitted on an open link",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "resonance_chunks_dropped_total",
			Help: "Total number of audio chunks dropped because the link was not open",
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "resonance_chunk_size_bytes",
			Help:    "Size of produced audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 2, 10), // 256B to ~128KB
		}),

		LinkState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "resonance_link_state",
			Help: "Transcription link state (0 none, 1 connecting, 2 open, 3 closed, 4 errored)",
		}),
		TranscriptsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "resonance_transcripts_received_total",
			Help: "Total number of transcript messages received",
		}),
		LinkErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "resonance_link_errors_total",
			Help: "Total number of transcription link failures",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resonance_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resonance_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resonance_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrame records a painted frame
func (m *Metrics) RecordFrame(durationSeconds, bass float64) {
	if m == nil {
		return
	}
	m.FramesRendered.Inc()
	m.FrameDuration.Observe(durationSeconds)
	m.BassEnergy.Set(bass)
}

// RecordFrameError increments the frame errors counter
func (m *Metrics) RecordFrameError() {
	if m == nil {
		return
	}
	m.FrameErrors.Inc()
}

// RecordSessionStarted increments the sessions counter for kind
func (m *Metrics) RecordSessionStarted(kind string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(kind).Inc()
}

// RecordSessionFailure records a failed session start
func (m *Metrics) RecordSessionFailure(kind, reason string) {
	if m == nil {
		return
	}
	m.SessionFailures.WithLabelValues(kind, reason).Inc()
}

// RecordSessionEnded records the lifetime of a stopped session
func (m *Metrics) RecordSessionEnded(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionDuration.Observe(durationSeconds)
}

// RecordChunkProduced records a chunk leaving the chunker
func (m *Metrics) RecordChunkProduced(sizeBytes int) {
	if m == nil {
		return
	}
	m.ChunksProduced.Inc()
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordChunkSent increments the chunks sent counter
func (m *Metrics) RecordChunkSent() {
	if m == nil {
		return
	}
	m.ChunksSent.Inc()
}

// RecordChunkDropped increments the chunks dropped counter
func (m *Metrics) RecordChunkDropped() {
	if m == nil {
		return
	}
	m.ChunksDropped.Inc()
}

// SetLinkState sets the link state gauge
func (m *Metrics) SetLinkState(state int) {
	if m == nil {
		return
	}
	m.LinkState.Set(float64(state))
}

// RecordTranscript increments the transcripts counter
func (m *Metrics) RecordTranscript() {
	if m == nil {
		return
	}
	m.TranscriptsReceived.Inc()
}

// RecordLinkError increments the link errors counter
func (m *Metrics) RecordLinkError() {
	if m == nil {
		return
	}
	m.LinkErrors.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
