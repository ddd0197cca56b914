package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/custodix/custos-oss/pkg/domain"
)

// Mux builds the admin route table. The metrics handler is passed in so the
// package does not depend on the telemetry registry directly.
func (s *Service) Mux(metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/admin/breaker", s.handleBreaker)
	mux.HandleFunc("/admin/breaker/reset", s.handleBreakerReset)
	mux.HandleFunc("/admin/security/events", s.handleSecurityEvents)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	return mux
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	status := s.Health()

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Service) handleBreaker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.Breaker())
}

func (s *Service) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	s.ResetBreaker()
	writeJSON(w, http.StatusOK, s.Breaker())
}

func (s *Service) handleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"total":  s.monitor.Total(),
			"events": s.SecurityEvents(),
		})
	case http.MethodPost:
		var req struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
			writeError(w, http.StatusBadRequest, "REASON_REQUIRED", "a non-empty reason is required")
			return
		}
		s.RecordSecurityEvent(req.Reason)
		writeJSON(w, http.StatusAccepted, map[string]any{"total": s.monitor.Total()})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, domain.ErrorResponse{Code: code, Message: message})
}
