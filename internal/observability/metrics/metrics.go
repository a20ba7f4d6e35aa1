// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_relay"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal        prometheus.Counter
	SessionsActive       prometheus.Gauge
	SessionDuration      prometheus.Histogram
	SessionStartFailures *prometheus.CounterVec

	// Recognition metrics
	BatchesTotal      prometheus.Counter
	ResultsTotal      *prometheus.CounterVec
	RecognitionErrors *prometheus.CounterVec

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter

	// Transcript action metrics
	TranscriptActions *prometheus.CounterVec

	// Relay metrics
	RelayRequests   *prometheus.CounterVec
	RelayLatency    prometheus.Histogram
	ProviderErrors  *prometheus.CounterVec
	RelayClientCall *prometheus.CounterVec

	// Event publish metrics
	PublishTotal   *prometheus.CounterVec
	PublishErrors  *prometheus.CounterVec
	PublishLatency *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	WSConnections prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics with the default
// registerer. Calling it twice panics on duplicate registration.
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry registers metrics on reg, for isolated tests.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of listening sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently listening",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of listening sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		SessionStartFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_start_failures_total",
			Help:      "Total number of session starts that failed",
		}, []string{"reason"}),

		BatchesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_batches_total",
			Help:      "Total number of recognition batches folded",
		}),
		ResultsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_results_total",
			Help:      "Total number of recognition results folded",
		}, []string{"kind"}),
		RecognitionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_errors_total",
			Help:      "Total number of recognition runtime errors",
		}, []string{"provider"}),

		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioFramesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),

		TranscriptActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_actions_total",
			Help:      "Total transcript clear, copy and send actions",
		}, []string{"action", "outcome"}),

		RelayRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_requests_total",
			Help:      "Total relay requests by response status",
		}, []string{"status"}),
		RelayLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_provider_latency_seconds",
			Help:      "Generation provider latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_provider_errors_total",
			Help:      "Total generation provider failures",
		}, []string{"provider"}),
		RelayClientCall: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_client_calls_total",
			Help:      "Total relay client calls by outcome",
		}, []string{"outcome"}),

		PublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_total",
			Help:      "Total number of transcript events published",
		}, []string{"sink", "event_type"}),
		PublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Total number of transcript event publish errors",
		}, []string{"sink", "event_type"}),
		PublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_publish_latency_seconds",
			Help:      "Transcript event publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"sink"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"route", "method", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections_active",
			Help:      "Number of open session websocket connections",
		}),
	}
}

// RecordSessionStart records a session entering Listening.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session returning to Idle.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordStartFailure records a session start that did not reach Listening.
func (m *Metrics) RecordStartFailure(reason string) {
	m.SessionStartFailures.WithLabelValues(reason).Inc()
}

// RecordBatch records one folded batch.
func (m *Metrics) RecordBatch(finals, interims int) {
	m.BatchesTotal.Inc()
	m.ResultsTotal.WithLabelValues("final").Add(float64(finals))
	m.ResultsTotal.WithLabelValues("interim").Add(float64(interims))
}

// RecordRecognitionError records a runtime error from a recognition source.
func (m *Metrics) RecordRecognitionError(provider string) {
	m.RecognitionErrors.WithLabelValues(provider).Inc()
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordAction records a transcript action and its outcome.
func (m *Metrics) RecordAction(action, outcome string) {
	m.TranscriptActions.WithLabelValues(action, outcome).Inc()
}

// RecordRelayRequest records a relay response status.
func (m *Metrics) RecordRelayRequest(status string) {
	m.RelayRequests.WithLabelValues(status).Inc()
}

// RecordProviderCall records a generation provider call.
func (m *Metrics) RecordProviderCall(provider string, err error, latencySeconds float64) {
	m.RelayLatency.Observe(latencySeconds)
	if err != nil {
		m.ProviderErrors.WithLabelValues(provider).Inc()
	}
}

// RecordClientCall records a relay client outcome.
func (m *Metrics) RecordClientCall(outcome string) {
	m.RelayClientCall.WithLabelValues(outcome).Inc()
}

// RecordPublish records a transcript event publish attempt.
func (m *Metrics) RecordPublish(sink, eventType string, err error, latencySeconds float64) {
	m.PublishTotal.WithLabelValues(sink, eventType).Inc()
	m.PublishLatency.WithLabelValues(sink).Observe(latencySeconds)
	if err != nil {
		m.PublishErrors.WithLabelValues(sink, eventType).Inc()
	}
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(route, method, code string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(route, method, code).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(durationSeconds)
}
