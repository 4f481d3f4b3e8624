package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"permis/pkg/platform/httputil"
)

// healthCheckTimeout bounds each dependency probe so a hung backend cannot
// hang the health endpoint itself.
const healthCheckTimeout = 2 * time.Second

// Checker probes one backing dependency.
type Checker func(ctx context.Context) error

// HealthHandler answers liveness probes. With no checks registered it reports
// plain ok; with checks it reports per-dependency status and degrades to 503
// when any check fails.
type HealthHandler struct {
	logger *slog.Logger
	checks map[string]Checker
}

// NewHealthHandler builds a health handler over the given named checks.
func NewHealthHandler(logger *slog.Logger, checks map[string]Checker) *HealthHandler {
	return &HealthHandler{logger: logger, checks: checks}
}

// HealthResponse is the healthz body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleHealthz handles GET /healthz requests.
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK

	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := check(ctx)
			cancel()

			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				if h.logger != nil {
					h.logger.WarnContext(r.Context(), "health check failed",
						"check", name,
						"error", err,
					)
				}
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	httputil.WriteJSON(w, status, resp)
}
