package governance

import (
	"math/rand"
	"time"

	"github.com/custodix/custos-oss/pkg/domain"
)

const (
	// backoffBase is the delay before the first retry.
	backoffBase = 100 * time.Millisecond
	// backoffCapAttempt is the attempt number at which the exponential delay
	// plateaus (100ms * 2^5 = 3.2s before jitter).
	backoffCapAttempt = 5
	// backoffJitterRange is the width of the uniform jitter added to every
	// delay to break up thundering-herd retries across concurrent callers.
	backoffJitterRange = 100 * time.Millisecond
)

// ShouldTrip reports whether the outcome should count against the custody
// circuit breaker. Policy rejections and validation failures are not
// retry-worthy and must never trip the breaker.
func ShouldTrip(outcome domain.Outcome) bool {
	return outcome == domain.OutcomeRateLimited || outcome == domain.OutcomeTransientUpstream
}

// BackoffDelay computes the exponential-backoff delay for the given retry
// attempt: base * 2^min(attempt, cap) plus uniform jitter in [0, 100ms).
// Attempt numbers are zero-based; negative values are clamped to zero.
func BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > backoffCapAttempt {
		attempt = backoffCapAttempt
	}

	delay := backoffBase << uint(attempt)

	// #nosec G404 - Non-cryptographic random is acceptable for jitter
	jitter := time.Duration(rand.Int63n(int64(backoffJitterRange)))
	return delay + jitter
}
