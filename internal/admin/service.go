package admin

import (
	"log/slog"
	"time"

	"github.com/custodix/custos-oss/internal/governance"
	"github.com/custodix/custos-oss/internal/webhook"
)

// HealthStatus is the body returned by the health endpoint.
type HealthStatus struct {
	Status             string `json:"status"`
	WebhookConfigured  bool   `json:"webhook_configured"`
	BreakerState       string `json:"breaker_state"`
	QueueDepth         int    `json:"queue_depth"`
	SecurityEventTotal uint64 `json:"security_event_total"`
	Timestamp          string `json:"timestamp"`
}

// DepthReporter reports the number of events waiting in the delivery queue.
// Queue backends that cannot report depth leave the service without one.
type DepthReporter interface {
	Depth() int
}

// Service aggregates the runtime state observed by the admin endpoints.
type Service struct {
	verifier *webhook.Verifier
	breaker  *governance.Breaker
	monitor  *governance.SecurityMonitor
	depth    DepthReporter
	logger   *slog.Logger
}

func NewService(verifier *webhook.Verifier, breaker *governance.Breaker, monitor *governance.SecurityMonitor, depth DepthReporter, logger *slog.Logger) *Service {
	return &Service{
		verifier: verifier,
		breaker:  breaker,
		monitor:  monitor,
		depth:    depth,
		logger:   logger.With("component", "admin"),
	}
}

// Health reports overall gateway readiness. The gateway is degraded when the
// signing secret is absent (every webhook would be rejected) or when the
// custody circuit is open.
func (s *Service) Health() HealthStatus {
	status := HealthStatus{
		Status:             "healthy",
		WebhookConfigured:  s.verifier.Configured(),
		BreakerState:       string(s.breaker.State()),
		SecurityEventTotal: s.monitor.Total(),
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
	}
	if s.depth != nil {
		status.QueueDepth = s.depth.Depth()
	}

	if !status.WebhookConfigured || s.breaker.State() == governance.StateOpen {
		status.Status = "degraded"
	}
	return status
}

// Breaker reports the custody circuit breaker state for operators.
func (s *Service) Breaker() governance.BreakerStats {
	return s.breaker.Stats()
}

// ResetBreaker force-closes the custody circuit. Exposed for operators who
// have confirmed the provider has recovered and do not want to wait out the
// open timeout.
func (s *Service) ResetBreaker() {
	s.logger.Warn("circuit breaker manually reset")
	s.breaker.Reset()
}

// SecurityEvents returns the most recent authentication failures,
// oldest first.
func (s *Service) SecurityEvents() []governance.SecurityEvent {
	return s.monitor.Recent()
}

// RecordSecurityEvent feeds an operator-observed security concern into the
// shared audit trail, alongside the events the verifier records itself.
func (s *Service) RecordSecurityEvent(reason string) {
	s.monitor.Record(reason)
}
