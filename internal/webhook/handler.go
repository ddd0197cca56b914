package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/custodix/custos-oss/internal/governance"
	"github.com/custodix/custos-oss/pkg/domain"
	"github.com/custodix/custos-oss/pkg/telemetry"
)

// maxBodyBytes bounds inbound webhook bodies. Provider events are small;
// anything larger is hostile or broken.
const maxBodyBytes = 1 << 20

// WebhookRoute is the rate-limiter route id for the inbound endpoint.
const WebhookRoute = "webhook"

// HTTPHandler is the inbound transport for webhook deliveries. Requests are
// rate limited, signature verified, decoded, and routed, in that order.
type HTTPHandler struct {
	verifier *Verifier
	router   *Router
	limiter  *governance.RateLimiter
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// NewHTTPHandler wires the transport. Limiter and metrics may be nil in
// tests.
func NewHTTPHandler(
	verifier *Verifier,
	router *Router,
	limiter *governance.RateLimiter,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		verifier: verifier,
		router:   router,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger.With("component", "webhook_handler"),
	}
}

// ServeHTTP implements http.Handler for POST /webhooks/custody.
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is accepted")
		return
	}

	if h.limiter != nil && !h.limiter.Allow(WebhookRoute) {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many webhook deliveries")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BODY_UNREADABLE", "failed to read request body")
		return
	}
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "webhook body exceeds limit")
		return
	}

	span := trace.SpanFromContext(r.Context())

	if err := h.verifier.Verify(body, r.Header.Get(SignatureHeader)); err != nil {
		telemetry.RecordVerificationEvent(span, false, "signature rejected")
		if h.metrics != nil {
			h.metrics.RecordSignatureFailure()
			h.metrics.RecordEvent(telemetry.ResultRejected, "unknown")
		}
		writeError(w, http.StatusUnauthorized, "SIGNATURE_INVALID", "webhook signature verification failed")
		return
	}
	telemetry.RecordVerificationEvent(span, true, "")

	event, err := domain.DecodeEnvelope(body)
	if err != nil {
		h.logger.Warn("undecodable webhook body", "error", err)
		writeError(w, http.StatusBadRequest, "ENVELOPE_INVALID", "webhook envelope could not be decoded")
		return
	}

	if err := h.router.Route(r.Context(), event); err != nil {
		if errors.Is(err, domain.ErrQueueUnavailable) {
			// Tell the provider to redeliver: the claim was rolled back.
			writeError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "event not accepted, retry later")
			return
		}
		writeError(w, http.StatusInternalServerError, "ROUTING_FAILED", "event routing failed")
		return
	}

	// Duplicates are deliberately indistinguishable from first deliveries:
	// the provider should stop redelivering either way.
	w.WriteHeader(http.StatusAccepted)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.ErrorResponse{Code: code, Message: message})
}
