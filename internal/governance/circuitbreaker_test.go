package governance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodix/custos-oss/pkg/domain"
)

func testBreaker(maxFailures int, openTimeout time.Duration) *Breaker {
	return NewBreaker(BreakerConfig{
		MaxFailures:       maxFailures,
		OpenTimeout:       openTimeout,
		MaxHalfOpenProbes: 2,
	})
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := testBreaker(3, time.Minute)

	b.RecordFailure(domain.OutcomeTransientUpstream)
	b.RecordFailure(domain.OutcomeTransientUpstream)
	assert.Equal(t, StateClosed, b.State())

	b.RecordFailure(domain.OutcomeRateLimited)
	assert.Equal(t, StateOpen, b.State())

	err := b.Allow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCircuitOpen))
}

// Non-trip-worthy outcomes never advance the breaker, no matter how many
// occur.
func TestBreakerIgnoresNonTripOutcomes(t *testing.T) {
	b := testBreaker(2, time.Minute)

	for i := 0; i < 10; i++ {
		b.RecordFailure(domain.OutcomeRejectedByPolicy)
		b.RecordFailure(domain.OutcomeInvalidRequest)
		b.RecordFailure(domain.OutcomeAcceptedPendingPolicy)
	}

	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := testBreaker(3, time.Minute)

	b.RecordFailure(domain.OutcomeTransientUpstream)
	b.RecordFailure(domain.OutcomeTransientUpstream)
	b.RecordSuccess()
	b.RecordFailure(domain.OutcomeTransientUpstream)
	b.RecordFailure(domain.OutcomeTransientUpstream)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenAfterTimeout(t *testing.T) {
	b := testBreaker(1, 10*time.Millisecond)

	b.RecordFailure(domain.OutcomeTransientUpstream)
	require.Equal(t, StateOpen, b.State())
	require.Error(t, b.Allow())

	time.Sleep(20 * time.Millisecond)

	// First call after the open timeout is admitted as a probe.
	assert.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreakerHalfOpenProbeBudget(t *testing.T) {
	b := testBreaker(1, 10*time.Millisecond)

	b.RecordFailure(domain.OutcomeTransientUpstream)
	time.Sleep(20 * time.Millisecond)

	// MaxHalfOpenProbes is 2: the transition consumes one probe slot, one
	// more call is admitted, further calls are rejected until an outcome is
	// recorded.
	require.NoError(t, b.Allow())
	require.NoError(t, b.Allow())

	err := b.Allow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCircuitOpen))
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := testBreaker(1, 10*time.Millisecond)

	b.RecordFailure(domain.OutcomeTransientUpstream)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Allow())

	b.RecordFailure(domain.OutcomeTransientUpstream)
	assert.Equal(t, StateOpen, b.State())
	assert.Error(t, b.Allow())
}

func TestBreakerHalfOpenSuccessesClose(t *testing.T) {
	b := testBreaker(1, 10*time.Millisecond)

	b.RecordFailure(domain.OutcomeTransientUpstream)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Allow())

	b.RecordSuccess()
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerReset(t *testing.T) {
	b := testBreaker(1, time.Hour)

	b.RecordFailure(domain.OutcomeRateLimited)
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())

	stats := b.Stats()
	assert.Equal(t, string(StateClosed), stats.State)
	assert.Zero(t, stats.Failures)
}

func TestBreakerStats(t *testing.T) {
	b := testBreaker(5, time.Minute)

	b.RecordFailure(domain.OutcomeTransientUpstream)
	b.RecordSuccess()
	b.RecordFailure(domain.OutcomeRateLimited)

	stats := b.Stats()
	assert.Equal(t, string(StateClosed), stats.State)
	assert.Equal(t, 2, stats.Failures)
	assert.Equal(t, 1, stats.Successes)
	assert.Equal(t, 1, stats.ConsecutiveFailures)
}
