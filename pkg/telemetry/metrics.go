package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodix/custos-oss/pkg/domain"
)

var (
	metricsOnce           sync.Once
	metricsInitErr        error
	submissionCounter     metric.Int64Counter
	submissionRetrier     metric.Int64Counter
	circuitOpenCounter    metric.Int64Counter
	rateLimitedCounter    metric.Int64Counter
	submissionLatencyHist metric.Float64Histogram
)

// SubmissionMetrics captures the fields needed to record custody submission
// telemetry.
type SubmissionMetrics struct {
	AssetID     string
	Environment string
	Outcome     domain.Outcome
	Duration    time.Duration
	Retries     int
}

// RecordSubmissionMetrics emits counters and histograms describing custody
// submission behaviour.
func RecordSubmissionMetrics(ctx context.Context, metrics SubmissionMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("custody.asset_id", metrics.AssetID),
		attribute.String("custody.environment", metrics.Environment),
	}
	// A submission that succeeded after retries has no classified outcome.
	if metrics.Outcome != "" {
		attrs = append(attrs, attribute.String("custody.outcome", metrics.Outcome.String()))
	}

	submissionCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if metrics.Duration > 0 {
		submissionLatencyHist.Record(ctx, float64(metrics.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}

	if metrics.Retries > 0 {
		submissionRetrier.Add(ctx, int64(metrics.Retries), metric.WithAttributes(attrs...))
	}

	switch metrics.Outcome {
	case domain.OutcomeRateLimited:
		rateLimitedCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	case domain.OutcomeTransientUpstream:
		circuitOpenCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("custos.custody")

		submissionCounter, metricsInitErr = meter.Int64Counter(
			"custody.submission_total",
			metric.WithDescription("Transfer submissions by classified outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		submissionRetrier, metricsInitErr = meter.Int64Counter(
			"custody.submission_retries_total",
			metric.WithDescription("Retries performed by the transfer submitter"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		circuitOpenCounter, metricsInitErr = meter.Int64Counter(
			"custody.transient_failures_total",
			metric.WithDescription("Transient upstream failures counted towards the circuit breaker"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		rateLimitedCounter, metricsInitErr = meter.Int64Counter(
			"custody.rate_limited_total",
			metric.WithDescription("Rate-limited custody calls"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		submissionLatencyHist, metricsInitErr = meter.Float64Histogram(
			"custody.submission_duration_ms",
			metric.WithDescription("Observed custody submission latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}

// RecordVerificationEvent attaches a coarse-grained signature verification
// event to the provided span without leaking signature material.
func RecordVerificationEvent(span trace.Span, accepted bool, reason string) {
	if span == nil || !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("webhook.signature.accepted", accepted),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String("webhook.signature.reason", reason))
	}

	span.AddEvent("webhook.verification", trace.WithAttributes(attrs...))
}
