package webhook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodix/custos-oss/pkg/domain"
	"github.com/custodix/custos-oss/pkg/telemetry"
)

// Router decides the fate of each verified webhook delivery: duplicates are
// dropped, new events are claimed in the dedupe store and forwarded to the
// processing queue.
//
// The claim is taken before the enqueue so concurrent deliveries of the same
// id cannot both enqueue; if the enqueue then fails, the claim is released
// so a provider redelivery gets retried. The invariant preserved from both
// orderings: an event is never left marked processed without having been
// accepted by the queue.
type Router struct {
	dedupe  DedupeStore
	queue   Queue
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewRouter wires the router. Metrics may be nil in tests.
func NewRouter(dedupe DedupeStore, queue Queue, metrics *telemetry.Metrics, logger *slog.Logger) *Router {
	return &Router{
		dedupe:  dedupe,
		queue:   queue,
		metrics: metrics,
		logger:  logger.With("component", "webhook_router"),
	}
}

// Route processes one delivery. Duplicates return nil: upstream redelivery
// of an already-processed event is the normal path, not an error.
func (r *Router) Route(ctx context.Context, event domain.Envelope) error {
	claimed, err := r.dedupe.TryClaim(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("dedupe claim for %s: %w", event.ID, err)
	}
	if !claimed {
		r.logger.Info("duplicate webhook event dropped", "event_id", event.ID, "event_type", event.Type)
		r.recordEvent(telemetry.ResultDuplicate, event.Type)
		return nil
	}

	if err := r.queue.Enqueue(ctx, event); err != nil {
		// Roll back the claim so a redelivery is retried rather than
		// silently lost.
		if releaseErr := r.dedupe.Release(ctx, event.ID); releaseErr != nil {
			r.logger.Error("failed to release dedupe claim after enqueue failure",
				"event_id", event.ID, "error", releaseErr)
		}
		r.recordEvent(telemetry.ResultEnqueueFailed, event.Type)
		if r.metrics != nil {
			r.metrics.RecordEnqueueFailure()
		}
		return fmt.Errorf("enqueue event %s: %w", event.ID, err)
	}

	r.logger.Info("webhook event routed", "event_id", event.ID, "event_type", event.Type)
	r.recordEvent(telemetry.ResultRouted, event.Type)
	return nil
}

func (r *Router) recordEvent(result, eventType string) {
	if r.metrics != nil {
		r.metrics.RecordEvent(result, eventType)
	}
}
