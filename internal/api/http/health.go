package http

import (
	"context"
	"net/http"

	"github.com/fluxtable/fluxtable/internal/probe"
)

// ReadinessChecker is the probe surface the /ready handler drives.
type ReadinessChecker interface {
	Check(ctx context.Context) (probe.Status, error)
}

// HealthHandler serves /health and /ready.
type HealthHandler struct {
	checker ReadinessChecker
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(checker ReadinessChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Register installs the health routes on the mux.
func (h *HealthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /ready", h.handleReady)
}

// handleHealth reports process liveness; it never touches the backend.
func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the backend answers a ping.
func (h *HealthHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	status, err := h.checker.Check(r.Context())
	if status == probe.StatusReady {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
		return
	}

	body := map[string]string{"status": string(status)}
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusServiceUnavailable, body)
}
