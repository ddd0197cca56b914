package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrUnauthorized       = errors.New("webhook signature verification failed")
	ErrMissingSignature   = fmt.Errorf("%w: signature header missing", ErrUnauthorized)
	ErrDuplicateEvent     = errors.New("webhook event already processed")
	ErrQueueUnavailable   = errors.New("processing queue unavailable")
	ErrCircuitOpen        = errors.New("custody circuit breaker is open")
	ErrPreflightRejected  = errors.New("transfer rejected by preflight policy")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrCustodyUnavailable = errors.New("custody provider unreachable")
)

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// ErrorResponse defines the standard JSON error model returned by the webhook
// and admin APIs. It intentionally avoids exposing sensitive details while
// providing a stable machine-readable code.
type ErrorResponse struct {
	Code    string `json:"code"`               // Machine-readable error code (e.g., SIGNATURE_INVALID)
	Message string `json:"message"`            // Human-readable message (safe for logs)
	TraceID string `json:"trace_id,omitempty"` // Optional trace/correlation ID
}
