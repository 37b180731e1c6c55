// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speaking_practice"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Dialogue stream metrics
	StreamsActive    prometheus.Gauge
	StreamFragments  prometheus.Counter
	StreamFirstByte  prometheus.Histogram
	StreamsAbandoned prometheus.Counter

	// Model metrics
	ModelErrors      *prometheus.CounterVec
	EvaluationScores prometheus.Histogram
	SpeechAudioBytes prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Request metrics
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of API requests by type and status code",
		}, []string{"type", "status"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"type"}),

		// Dialogue stream metrics
		StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_streams_active",
			Help:      "Number of chat event streams currently open",
		}),
		StreamFragments: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_fragments_total",
			Help:      "Total number of text fragments streamed to clients",
		}),
		StreamFirstByte: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_first_fragment_seconds",
			Help:      "Time from request to first streamed fragment",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5},
		}),
		StreamsAbandoned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_streams_abandoned_total",
			Help:      "Total number of chat streams closed after a mid-stream failure",
		}),

		// Model metrics
		ModelErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_errors_total",
			Help:      "Total number of hosted model errors",
		}, []string{"operation"}),
		EvaluationScores: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_score",
			Help:      "Distribution of final evaluation scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		SpeechAudioBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_audio_bytes_total",
			Help:      "Total synthesized PCM bytes returned to clients",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordRequest records a completed API request.
func (m *Metrics) RecordRequest(requestType, status string, durationSeconds float64) {
	m.RequestsTotal.WithLabelValues(requestType, status).Inc()
	m.RequestDuration.WithLabelValues(requestType).Observe(durationSeconds)
}

// RecordStreamStart records a chat stream opening.
func (m *Metrics) RecordStreamStart() {
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a chat stream closing.
func (m *Metrics) RecordStreamEnd(abandoned bool) {
	m.StreamsActive.Dec()
	if abandoned {
		m.StreamsAbandoned.Inc()
	}
}

// RecordFragment records one streamed text fragment.
func (m *Metrics) RecordFragment() {
	m.StreamFragments.Inc()
}

// RecordFirstFragment records latency to the first fragment.
func (m *Metrics) RecordFirstFragment(seconds float64) {
	m.StreamFirstByte.Observe(seconds)
}

// RecordModelError records a hosted model failure.
func (m *Metrics) RecordModelError(operation string) {
	m.ModelErrors.WithLabelValues(operation).Inc()
}

// RecordEvaluation records a final evaluation score.
func (m *Metrics) RecordEvaluation(score float64) {
	m.EvaluationScores.Observe(score)
}

// RecordSpeech records synthesized audio size.
func (m *Metrics) RecordSpeech(bytes int) {
	m.SpeechAudioBytes.Add(float64(bytes))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
