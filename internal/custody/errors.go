package custody

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Provider status strings reported in error bodies. The set mirrors what the
// custody API actually sends; anything unrecognized is treated as transient.
const (
	statusRejected             = "REJECTED"
	statusBlockedByPolicy      = "BLOCKED_BY_POLICY"
	statusPendingAuthorization = "PENDING_AUTHORIZATION"
)

// Provider sub-codes that signal an explicit policy rejection regardless of
// the textual status.
const (
	codePolicyRejection = 1409
	codeTapViolation    = 1410
)

// ProviderError is the narrow, typed shape parsed once at the SDK boundary.
// Classification works against this struct instead of guessing field paths
// on an untyped error value.
type ProviderError struct {
	// StatusCode is the HTTP status of the failed call, zero when the call
	// never produced a response.
	StatusCode int
	// Status is the provider-reported transaction status, when present.
	Status string
	// Code is the provider-specific numeric sub-code, when present.
	Code int
	// Message is the provider-reported error message.
	Message string
	// Err is the underlying transport error, when present.
	Err error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("custody provider: %s (http %d)", e.Message, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("custody provider: %v", e.Err)
	}
	return fmt.Sprintf("custody provider: http %d", e.StatusCode)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Timeout reports whether the error stems from a deadline or network
// timeout rather than a provider response.
func (e *ProviderError) Timeout() bool {
	if e.Err == nil {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// parseProviderError normalizes an arbitrary error from the custody call
// path into a ProviderError. It never fails: unknown errors come back with
// zero status and the original error preserved for unwrapping.
func parseProviderError(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}

	return &ProviderError{Err: err}
}
