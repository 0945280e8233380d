package api

import (
	"context"
	"net/http"
	"time"

	"github.com/onnwee/bastion/internal/health"
)

// healthCheckTimeout bounds each dependency probe.
const healthCheckTimeout = 2 * time.Second

// HealthHandlers exposes liveness and readiness probes.
type HealthHandlers struct {
	checkers map[string]health.Checker
}

// NewHealthHandlers creates probe handlers over the named dependency
// checkers.
func NewHealthHandlers(checkers map[string]health.Checker) *HealthHandlers {
	return &HealthHandlers{checkers: checkers}
}

// Live handles GET /health: the process is up.
func (h *HealthHandlers) Live(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, r.Context(), http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /ready: every dependency answers within the timeout.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checkers))
	for name, checker := range h.checkers {
		if err := checker.HealthCheck(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	WriteJSON(w, r.Context(), status, map[string]any{"dependencies": results})
}
