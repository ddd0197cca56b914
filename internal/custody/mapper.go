package custody

import (
	"log/slog"
	"net/http"

	"github.com/custodix/custos-oss/pkg/domain"
)

// ErrorMapper classifies failures from the custody provider into domain
// outcomes. It is deterministic and total: it never panics and always
// returns a member of the outcome enumeration, defaulting unrecognized
// failures to transient so they remain retry-eligible.
type ErrorMapper struct {
	logger *slog.Logger
}

// NewErrorMapper builds a mapper logging each classification branch.
func NewErrorMapper(logger *slog.Logger) *ErrorMapper {
	return &ErrorMapper{logger: logger.With("component", "error_mapper")}
}

// MapOutcome classifies err. The branches are evaluated in priority order so
// specific conditions are not masked by generic ones: rate limiting first,
// then explicit policy rejection, then pending authorization, then request
// validation failures, then everything else as transient.
func (m *ErrorMapper) MapOutcome(err error) domain.Outcome {
	if err == nil {
		return domain.OutcomeTransientUpstream
	}

	perr := parseProviderError(err)

	switch {
	case perr.StatusCode == http.StatusTooManyRequests:
		m.logger.Warn("custody call rate limited", "status", perr.StatusCode, "message", perr.Message)
		return domain.OutcomeRateLimited

	case perr.Status == statusRejected,
		perr.Status == statusBlockedByPolicy,
		perr.Code == codePolicyRejection,
		perr.Code == codeTapViolation:
		m.logger.Warn("custody request rejected by provider policy",
			"status", perr.Status, "code", perr.Code, "message", perr.Message)
		return domain.OutcomeRejectedByPolicy

	case perr.Status == statusPendingAuthorization:
		m.logger.Info("custody request accepted pending policy authorization",
			"status", perr.Status)
		return domain.OutcomeAcceptedPendingPolicy

	case perr.StatusCode == http.StatusBadRequest,
		perr.StatusCode == http.StatusNotFound,
		perr.StatusCode == http.StatusUnprocessableEntity:
		m.logger.Warn("custody request invalid",
			"status", perr.StatusCode, "message", perr.Message)
		return domain.OutcomeInvalidRequest

	default:
		m.logger.Error("custody call failed upstream, treating as transient",
			"status", perr.StatusCode, "timeout", perr.Timeout(), "error", err)
		return domain.OutcomeTransientUpstream
	}
}
