package governance

import (
	"sync"
	"time"

	"github.com/custodix/custos-oss/pkg/domain"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState string

const (
	// StateClosed indicates the circuit is closed and calls are allowed.
	StateClosed BreakerState = "closed"
	// StateOpen indicates the circuit is open and calls are rejected.
	StateOpen BreakerState = "open"
	// StateHalfOpen indicates the circuit is probing whether the provider has
	// recovered.
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig defines thresholds for circuit breaking.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive trip-worthy failures before
	// the circuit opens.
	MaxFailures int
	// OpenTimeout is how long the circuit stays open before transitioning to
	// half-open.
	OpenTimeout time.Duration
	// MaxHalfOpenProbes is the number of test calls allowed in half-open
	// state before forcing a decision (close on success, reopen on failure).
	MaxHalfOpenProbes int
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:       5,
		OpenTimeout:       30 * time.Second,
		MaxHalfOpenProbes: 3,
	}
}

// Breaker is an explicit CLOSED → OPEN → HALF_OPEN circuit breaker guarding
// calls to the custody provider. Failures only count against the breaker when
// their classified outcome is trip-worthy (see ShouldTrip); policy rejections
// and invalid requests pass through without affecting circuit state.
type Breaker struct {
	mu     sync.RWMutex
	state  BreakerState
	config BreakerConfig

	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenProbes       int
	lastStateChange      time.Time
	openUntil            time.Time

	totalFailures  int
	totalSuccesses int
}

// NewBreaker creates a circuit breaker with the provided configuration.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = DefaultBreakerConfig().MaxFailures
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = DefaultBreakerConfig().OpenTimeout
	}
	if config.MaxHalfOpenProbes <= 0 {
		config.MaxHalfOpenProbes = DefaultBreakerConfig().MaxHalfOpenProbes
	}

	return &Breaker{
		state:           StateClosed,
		config:          config,
		lastStateChange: time.Now(),
	}
}

// Allow checks whether a call may proceed. It returns domain.ErrCircuitOpen
// while the circuit is open; an open circuit whose timeout has elapsed
// transitions to half-open and admits a bounded number of probe calls.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if !b.openUntil.IsZero() && now.After(b.openUntil) {
			b.transitionLocked(StateHalfOpen, now)
			b.halfOpenProbes++
			return nil
		}
		return domain.ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenProbes < b.config.MaxHalfOpenProbes {
			b.halfOpenProbes++
			return nil
		}
		return domain.ErrCircuitOpen
	default:
		return domain.ErrCircuitOpen
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.totalSuccesses++
	b.consecutiveSuccesses++
	b.consecutiveFailures = 0

	if b.state == StateHalfOpen && b.consecutiveSuccesses >= b.config.MaxHalfOpenProbes {
		b.transitionLocked(StateClosed, now)
	}
}

// RecordFailure records a failed call with its classified outcome. Only
// trip-worthy outcomes advance the breaker towards (or back to) open.
func (b *Breaker) RecordFailure(outcome domain.Outcome) {
	if !ShouldTrip(outcome) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.totalFailures++
	b.consecutiveFailures++
	b.consecutiveSuccesses = 0

	switch b.state {
	case StateHalfOpen:
		b.transitionLocked(StateOpen, now)
	case StateClosed:
		if b.consecutiveFailures >= b.config.MaxFailures {
			b.transitionLocked(StateOpen, now)
		}
	}
}

func (b *Breaker) transitionLocked(newState BreakerState, now time.Time) {
	if b.state == newState {
		return
	}

	b.state = newState
	b.lastStateChange = now
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.halfOpenProbes = 0

	if newState == StateOpen {
		b.openUntil = now.Add(b.config.OpenTimeout)
	} else {
		b.openUntil = time.Time{}
	}
}

// State returns the current state of the circuit breaker.
func (b *Breaker) State() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Reset manually returns the breaker to the closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transitionLocked(StateClosed, time.Now())
	b.totalFailures = 0
	b.totalSuccesses = 0
}

// BreakerStats exposes circuit breaker status information.
type BreakerStats struct {
	State               string `json:"state"`
	Failures            int    `json:"failures"`
	Successes           int    `json:"successes"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	LastStateChange     string `json:"lastStateChange"`
	OpenTimeout         string `json:"openTimeout"`
	HalfOpenProbes      int    `json:"halfOpenProbes"`
	MaxHalfOpenProbes   int    `json:"maxHalfOpenProbes"`
}

// Stats returns current circuit breaker statistics.
func (b *Breaker) Stats() BreakerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BreakerStats{
		State:               string(b.state),
		Failures:            b.totalFailures,
		Successes:           b.totalSuccesses,
		ConsecutiveFailures: b.consecutiveFailures,
		LastStateChange:     b.lastStateChange.Format(time.RFC3339),
		OpenTimeout:         b.config.OpenTimeout.String(),
		HalfOpenProbes:      b.halfOpenProbes,
		MaxHalfOpenProbes:   b.config.MaxHalfOpenProbes,
	}
}
