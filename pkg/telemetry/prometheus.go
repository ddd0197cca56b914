package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the webhook pipeline.
type Metrics struct {
	// Webhook metrics
	eventsTotal       *prometheus.CounterVec
	signatureFailures prometheus.Counter
	securityEvents    prometheus.Counter

	// Submission metrics
	submissionsTotal  *prometheus.CounterVec
	submissionLatency prometheus.Histogram

	// Queue metrics
	queueDepth      prometheus.Gauge
	enqueueFailures prometheus.Counter

	registry *prometheus.Registry
}

// Event routing results used as the "result" label on eventsTotal.
const (
	ResultRouted        = "routed"
	ResultDuplicate     = "duplicate"
	ResultRejected      = "rejected"
	ResultEnqueueFailed = "enqueue_failed"
)

// NewMetrics creates a metrics instance with all pipeline metrics registered
// on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "custos_webhook_events_total",
				Help: "Total number of webhook deliveries by routing result",
			},
			[]string{"result", "type"},
		),

		signatureFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "custos_webhook_signature_failures_total",
				Help: "Total number of webhook deliveries rejected for bad or missing signatures",
			},
		),

		securityEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "custos_security_events_total",
				Help: "Total number of recorded security events",
			},
		),

		submissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "custos_submissions_total",
				Help: "Total number of custody transfer submissions by classified outcome",
			},
			[]string{"outcome"},
		),

		submissionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "custos_submission_duration_seconds",
				Help:    "Custody transfer submission latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "custos_queue_depth",
				Help: "Number of webhook events currently buffered for processing",
			},
		),

		enqueueFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "custos_enqueue_failures_total",
				Help: "Total number of webhook events the processing queue refused",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.eventsTotal,
		m.signatureFailures,
		m.securityEvents,
		m.submissionsTotal,
		m.submissionLatency,
		m.queueDepth,
		m.enqueueFailures,
	)

	return m
}

// RecordEvent counts one webhook delivery with its routing result.
func (m *Metrics) RecordEvent(result, eventType string) {
	m.eventsTotal.WithLabelValues(result, eventType).Inc()
}

// RecordSignatureFailure counts one rejected delivery.
func (m *Metrics) RecordSignatureFailure() {
	m.signatureFailures.Inc()
}

// SecurityEventCounter exposes the security-event counter for the monitor.
func (m *Metrics) SecurityEventCounter() prometheus.Counter {
	return m.securityEvents
}

// RecordSubmission counts one transfer submission with its outcome and
// observed latency in seconds.
func (m *Metrics) RecordSubmission(outcome string, seconds float64) {
	m.submissionsTotal.WithLabelValues(outcome).Inc()
	m.submissionLatency.Observe(seconds)
}

// SetQueueDepth reports the current processing-queue backlog.
func (m *Metrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

// RecordEnqueueFailure counts one refused enqueue.
func (m *Metrics) RecordEnqueueFailure() {
	m.enqueueFailures.Inc()
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
