package domain

// Outcome classifies a failure (or pending success) reported by the custody
// provider into an actionable category. It is produced by the custody error
// mapper and consumed by retry and circuit-breaker logic.
type Outcome string

const (
	// OutcomeAcceptedPendingPolicy means the provider accepted the request but
	// is holding it for policy authorization. This is a success with pending
	// state, not a failure.
	OutcomeAcceptedPendingPolicy Outcome = "accepted_pending_policy"
	// OutcomeRejectedByPolicy means the provider explicitly rejected the
	// request under its transaction policy. Not retryable.
	OutcomeRejectedByPolicy Outcome = "rejected_by_policy"
	// OutcomeRateLimited means the provider throttled the request (HTTP 429).
	OutcomeRateLimited Outcome = "rate_limited"
	// OutcomeTransientUpstream covers timeouts, 5xx responses and any failure
	// the mapper cannot classify. Retry-eligible by construction: unknown
	// failures are treated as retryable rather than fatal.
	OutcomeTransientUpstream Outcome = "transient_upstream"
	// OutcomeInvalidRequest means the request itself was malformed or referred
	// to unknown resources (HTTP 400/404/422). Not retryable.
	OutcomeInvalidRequest Outcome = "invalid_request"
	// OutcomeSecurityEvent marks authentication and signature failures. It is
	// produced by the webhook verification path, never by the error mapper.
	OutcomeSecurityEvent Outcome = "security_event"
)

// Retryable reports whether the outcome describes a failure that may succeed
// on a later attempt. Policy rejections and invalid requests are terminal.
func (o Outcome) Retryable() bool {
	return o == OutcomeRateLimited || o == OutcomeTransientUpstream
}

// String returns the wire representation of the outcome.
func (o Outcome) String() string { return string(o) }
