package custody

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodix/custos-oss/internal/governance"
	"github.com/custodix/custos-oss/pkg/domain"
)

type fakeClient struct {
	responses []fakeResponse
	calls     []TransferRequest
}

type fakeResponse struct {
	resp *TransferResponse
	err  error
}

func (f *fakeClient) SubmitTransfer(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	f.calls = append(f.calls, req)
	if len(f.responses) == 0 {
		return &TransferResponse{ID: "tx-default", Status: "SUBMITTED"}, nil
	}
	next := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return next.resp, next.err
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func newTestSubmitter(client Client, maxRetries int) (*Submitter, *governance.Breaker) {
	logger := slog.Default()
	breaker := governance.NewBreaker(governance.BreakerConfig{
		MaxFailures:       3,
		OpenTimeout:       time.Minute,
		MaxHalfOpenProbes: 1,
	})
	s := NewSubmitter(client, NewErrorMapper(logger), breaker, nil,
		SubmitterConfig{MaxRetries: maxRetries}, logger)
	return s, breaker
}

func validCommand() domain.TransferCommand {
	return domain.TransferCommand{
		Source:       "vault-1",
		Destination:  "vault-2",
		AssetID:      "ETH",
		Amount:       "0.25",
		ExternalTxID: "ext-1",
	}
}

func TestSubmitSuccess(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{resp: &TransferResponse{ID: "tx-9", Status: "SUBMITTED"}},
	}}
	s, _ := newTestSubmitter(client, 3)

	receipt, err := s.Submit(context.Background(), validCommand())
	require.NoError(t, err)

	assert.Equal(t, "tx-9", receipt.TxID)
	assert.False(t, receipt.PendingPolicy)
	assert.Len(t, client.calls, 1)
}

func TestSubmitInvalidCommandNotSent(t *testing.T) {
	client := &fakeClient{}
	s, _ := newTestSubmitter(client, 3)

	cmd := validCommand()
	cmd.Amount = "-5"

	_, err := s.Submit(context.Background(), cmd)
	require.Error(t, err)

	var derr *domain.DomainError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "INVALID_REQUEST", derr.Code)
	assert.Empty(t, client.calls, "invalid commands must never reach the provider")
}

// A rate-limited submission is retried with the same idempotency key and,
// once the retry budget is exhausted, the original provider error surfaces
// to the caller.
func TestSubmitRateLimitedExhaustsRetries(t *testing.T) {
	rateLimited := &ProviderError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}
	client := &fakeClient{responses: []fakeResponse{{err: rateLimited}}}
	s, _ := newTestSubmitter(client, 2)

	_, err := s.Submit(context.Background(), validCommand())
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)

	// First attempt plus two retries.
	require.Len(t, client.calls, 3)
	for _, call := range client.calls {
		assert.Equal(t, "ext-1", call.ExternalTxID)
	}
}

func TestSubmitPolicyRejectionNotRetried(t *testing.T) {
	rejection := &ProviderError{StatusCode: http.StatusConflict, Status: "REJECTED"}
	client := &fakeClient{responses: []fakeResponse{{err: rejection}}}
	s, breaker := newTestSubmitter(client, 5)

	_, err := s.Submit(context.Background(), validCommand())
	require.Error(t, err)

	assert.Len(t, client.calls, 1, "policy rejections are terminal")
	assert.Equal(t, governance.StateClosed, breaker.State(),
		"rejections must not count toward the breaker threshold")
}

func TestSubmitPendingAuthorizationIsNotAnError(t *testing.T) {
	pending := &ProviderError{
		StatusCode: http.StatusAccepted,
		Status:     "PENDING_AUTHORIZATION",
	}
	client := &fakeClient{responses: []fakeResponse{{err: pending}}}
	s, breaker := newTestSubmitter(client, 3)

	receipt, err := s.Submit(context.Background(), validCommand())
	require.NoError(t, err)

	assert.True(t, receipt.PendingPolicy)
	assert.Equal(t, governance.StateClosed, breaker.State())
}

func TestSubmitPendingStatusOnSuccessBody(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{resp: &TransferResponse{ID: "tx-2", Status: "PENDING_AUTHORIZATION"}},
	}}
	s, _ := newTestSubmitter(client, 0)

	receipt, err := s.Submit(context.Background(), validCommand())
	require.NoError(t, err)
	assert.True(t, receipt.PendingPolicy)
}

func TestSubmitBreakerOpenRejectsImmediately(t *testing.T) {
	client := &fakeClient{}
	s, breaker := newTestSubmitter(client, 3)

	for i := 0; i < 3; i++ {
		breaker.RecordFailure(domain.OutcomeTransientUpstream)
	}
	require.Equal(t, governance.StateOpen, breaker.State())

	_, err := s.Submit(context.Background(), validCommand())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCircuitOpen))
	assert.Empty(t, client.calls)
}

func TestSubmitTransientFailuresOpenBreaker(t *testing.T) {
	upstream := &ProviderError{StatusCode: http.StatusServiceUnavailable}
	client := &fakeClient{responses: []fakeResponse{{err: upstream}}}
	s, breaker := newTestSubmitter(client, 2)

	_, err := s.Submit(context.Background(), validCommand())
	require.Error(t, err)

	// Three failed attempts reach the threshold of three.
	assert.Equal(t, governance.StateOpen, breaker.State())
}

func TestSubmitContextCancelledDuringBackoff(t *testing.T) {
	upstream := &ProviderError{StatusCode: http.StatusInternalServerError}
	client := &fakeClient{responses: []fakeResponse{{err: upstream}}}
	s, _ := newTestSubmitter(client, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Submit(ctx, validCommand())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

// The retry count reported by the attempt loop feeds the retry telemetry;
// it must match the number of extra provider calls actually made.
func TestSubmitAttemptCountsRetries(t *testing.T) {
	rateLimited := &ProviderError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}
	client := &fakeClient{responses: []fakeResponse{
		{err: rateLimited},
		{err: rateLimited},
		{resp: &TransferResponse{ID: "tx-3", Status: "SUBMITTED"}},
	}}
	s, _ := newTestSubmitter(client, 5)

	receipt, retries, err := s.attempt(context.Background(), validCommand())
	require.NoError(t, err)
	assert.Equal(t, "tx-3", receipt.TxID)
	assert.Equal(t, 2, retries)
	assert.Len(t, client.calls, 3)

	clean := &fakeClient{responses: []fakeResponse{
		{resp: &TransferResponse{ID: "tx-4", Status: "SUBMITTED"}},
	}}
	s2, _ := newTestSubmitter(clean, 5)
	_, retries, err = s2.attempt(context.Background(), validCommand())
	require.NoError(t, err)
	assert.Zero(t, retries)
}

type denyAllPolicy struct{}

func (denyAllPolicy) Evaluate(ctx context.Context, cmd domain.TransferCommand) error {
	return &domain.DomainError{
		Err:  domain.ErrPreflightRejected,
		Code: "PREFLIGHT_REJECTED",
	}
}

func TestSubmitPreflightPolicyBlocks(t *testing.T) {
	client := &fakeClient{}
	logger := slog.Default()
	breaker := governance.NewBreaker(governance.DefaultBreakerConfig())
	s := NewSubmitter(client, NewErrorMapper(logger), breaker, denyAllPolicy{},
		SubmitterConfig{MaxRetries: 1}, logger)

	_, err := s.Submit(context.Background(), validCommand())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPreflightRejected))
	assert.Empty(t, client.calls)
}
