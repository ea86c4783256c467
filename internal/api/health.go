package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthCheckFunc produces a diagnostic body and whether the service is healthy.
// It must not fail.
type HealthCheckFunc func(ctx context.Context) (report any, healthy bool)

// HealthHandler serves GET /health.
type HealthHandler struct {
	check HealthCheckFunc
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(check HealthCheckFunc) *HealthHandler {
	return &HealthHandler{check: check}
}

// RegisterHealth registers the health route at the root and under /api.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/api/health", h.Health)
}

// Health writes the report with 200 when healthy and 503 otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	report, healthy := h.check(r.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, report)
}
