package custody

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodix/custos-oss/pkg/domain"
	"github.com/custodix/custos-oss/pkg/telemetry"
)

// EventTypeTransferRequested marks queue events carrying a transfer command
// to be submitted upstream. Any other event type is acknowledged and left to
// deployment-specific consumers.
const EventTypeTransferRequested = "transfer.requested"

// EventProcessor consumes routed webhook events. It satisfies the queue
// Handler contract.
type EventProcessor struct {
	submitter *Submitter
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

func NewEventProcessor(submitter *Submitter, metrics *telemetry.Metrics, logger *slog.Logger) *EventProcessor {
	return &EventProcessor{
		submitter: submitter,
		metrics:   metrics,
		logger:    logger.With("component", "event_processor"),
	}
}

func (p *EventProcessor) Handle(ctx context.Context, event domain.Envelope) error {
	if event.Type != EventTypeTransferRequested {
		p.logger.Info("Event acknowledged", "event_id", event.ID, "type", event.Type)
		return nil
	}

	var cmd domain.TransferCommand
	if err := json.Unmarshal(event.Payload, &cmd); err != nil {
		return fmt.Errorf("decode transfer command from event %s: %w", event.ID, err)
	}
	if cmd.ExternalTxID == "" {
		cmd.ExternalTxID = event.ID
	}

	start := time.Now()
	receipt, err := p.submitter.Submit(ctx, cmd)
	duration := time.Since(start)

	// Successful submissions have no classified outcome; they are labelled
	// "accepted" on the scrape side. The submitter records the otel-side
	// counters itself, retries included.
	label := "accepted"
	switch {
	case err != nil:
		label = p.submitter.mapper.MapOutcome(err).String()
	case receipt.PendingPolicy:
		label = domain.OutcomeAcceptedPendingPolicy.String()
	}

	if p.metrics != nil {
		p.metrics.RecordSubmission(label, duration.Seconds())
	}

	if err != nil {
		p.logger.Error("Transfer submission failed",
			"event_id", event.ID,
			"external_tx_id", cmd.ExternalTxID,
			"outcome", label,
			"error", err)
		return err
	}

	p.logger.Info("Transfer submitted",
		"event_id", event.ID,
		"external_tx_id", cmd.ExternalTxID,
		"tx_id", receipt.TxID,
		"pending_policy", receipt.PendingPolicy)
	return nil
}
