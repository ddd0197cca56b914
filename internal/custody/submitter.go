package custody

import (
	"context"
	"log/slog"
	"time"

	"github.com/custodix/custos-oss/internal/governance"
	"github.com/custodix/custos-oss/pkg/domain"
	"github.com/custodix/custos-oss/pkg/telemetry"
)

// PreflightPolicy evaluates business rules against a transfer before it is
// submitted. Implementations return domain.ErrPreflightRejected-wrapped
// errors when a rule denies the transfer.
type PreflightPolicy interface {
	Evaluate(ctx context.Context, cmd domain.TransferCommand) error
}

// SubmitterConfig tunes the submission retry loop.
type SubmitterConfig struct {
	// MaxRetries is the number of additional attempts after the first
	// submission fails with a retryable outcome.
	MaxRetries int
	// Environment labels submission telemetry (sandbox, production).
	Environment string
}

// Submitter orchestrates pre-flight validation and circuit-breaker-gated
// submission of custodial transfers. Failed submissions are classified by
// the error mapper; only trip-worthy outcomes count against the breaker or
// trigger a backoff retry, and the provider's idempotency key travels
// unchanged across attempts.
type Submitter struct {
	client    Client
	mapper    *ErrorMapper
	breaker   *governance.Breaker
	preflight PreflightPolicy
	config    SubmitterConfig
	logger    *slog.Logger
}

// NewSubmitter wires the submission service. The preflight policy is
// optional; structural validation always runs.
func NewSubmitter(
	client Client,
	mapper *ErrorMapper,
	breaker *governance.Breaker,
	preflight PreflightPolicy,
	config SubmitterConfig,
	logger *slog.Logger,
) *Submitter {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Submitter{
		client:    client,
		mapper:    mapper,
		breaker:   breaker,
		preflight: preflight,
		config:    config,
		logger:    logger.With("component", "transfer_submitter"),
	}
}

// Preflight validates the command shape and evaluates the transfer policy.
// Violations surface as invalid-request classified domain errors so retry
// logic never retries them.
func (s *Submitter) Preflight(ctx context.Context, cmd domain.TransferCommand) error {
	if err := cmd.Validate(); err != nil {
		return &domain.DomainError{
			Err:     err,
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		}
	}
	if s.preflight != nil {
		if err := s.preflight.Evaluate(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// Submit runs preflight then attempts the transfer. On failure the error is
// classified; retryable outcomes are retried with exponential backoff up to
// the configured budget, and the original provider error is returned to the
// caller once the budget is exhausted. A provider response of
// pending-authorization is threaded through as a non-error pending receipt.
func (s *Submitter) Submit(ctx context.Context, cmd domain.TransferCommand) (*domain.TransferReceipt, error) {
	if err := s.Preflight(ctx, cmd); err != nil {
		return nil, err
	}

	start := time.Now()
	receipt, retries, err := s.attempt(ctx, cmd)
	s.recordTelemetry(ctx, cmd, receipt, retries, time.Since(start), err)
	return receipt, err
}

// attempt runs the breaker-gated retry loop and reports how many retries
// were spent reaching the terminal result.
func (s *Submitter) attempt(ctx context.Context, cmd domain.TransferCommand) (*domain.TransferReceipt, int, error) {
	req := TransferRequest{
		Source:       cmd.Source,
		Destination:  cmd.Destination,
		AssetID:      cmd.AssetID,
		Amount:       cmd.Amount,
		ExternalTxID: cmd.ExternalTxID,
		Note:         cmd.Note,
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := s.breaker.Allow(); err != nil {
			return nil, attempt, err
		}

		resp, err := s.client.SubmitTransfer(ctx, req)
		if err == nil {
			s.breaker.RecordSuccess()
			return &domain.TransferReceipt{
				TxID:          resp.ID,
				Status:        resp.Status,
				PendingPolicy: resp.Status == statusPendingAuthorization,
			}, attempt, nil
		}

		outcome := s.mapper.MapOutcome(err)
		if outcome == domain.OutcomeAcceptedPendingPolicy {
			// The provider holds the transfer for authorization; this is a
			// success with pending state, not a failure.
			s.breaker.RecordSuccess()
			perr := parseProviderError(err)
			return &domain.TransferReceipt{
				Status:        perr.Status,
				PendingPolicy: true,
			}, attempt, nil
		}

		s.breaker.RecordFailure(outcome)
		lastErr = err

		if governance.ShouldTrip(outcome) {
			s.logger.Warn("custody submission failed, circuit-breaker candidate",
				"outcome", outcome.String(),
				"attempt", attempt,
				"external_tx_id", cmd.ExternalTxID,
				"breaker_state", string(s.breaker.State()))
		}

		if !outcome.Retryable() || attempt >= s.config.MaxRetries {
			return nil, attempt, lastErr
		}

		delay := governance.BackoffDelay(attempt)
		s.logger.Info("retrying custody submission",
			"attempt", attempt+1, "delay", delay.String(), "external_tx_id", cmd.ExternalTxID)

		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// recordTelemetry classifies the terminal result and emits the submission
// counters. Clean first-attempt successes carry no outcome and are counted
// only on the prometheus side by the event processor.
func (s *Submitter) recordTelemetry(ctx context.Context, cmd domain.TransferCommand, receipt *domain.TransferReceipt, retries int, elapsed time.Duration, err error) {
	metrics := telemetry.SubmissionMetrics{
		AssetID:     cmd.AssetID,
		Environment: s.config.Environment,
		Duration:    elapsed,
		Retries:     retries,
	}
	switch {
	case err != nil:
		metrics.Outcome = s.mapper.MapOutcome(err)
	case receipt != nil && receipt.PendingPolicy:
		metrics.Outcome = domain.OutcomeAcceptedPendingPolicy
	default:
		if retries == 0 {
			return
		}
	}
	telemetry.RecordSubmissionMetrics(ctx, metrics)
}
