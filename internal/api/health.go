package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/rizzcoach/internal/config"
	"github.com/ashureev/rizzcoach/internal/store"
)

// HealthHandler handles health check and client configuration endpoints.
type HealthHandler struct {
	repo  store.Repository
	cfg   *config.Config
	mode  string
	ready func() bool
}

// NewHealthHandler creates a new health handler. mode names the active
// analysis transport; ready, when set, reports analysis readiness.
func NewHealthHandler(repo store.Repository, cfg *config.Config, mode string, ready func() bool) *HealthHandler {
	return &HealthHandler{repo: repo, cfg: cfg, mode: mode, ready: ready}
}

// RegisterRoutes registers the health and config routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.Health)
	r.Get("/api/config", h.GetConfig)
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"api": "ok", "analysis": h.mode}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.ready != nil && !h.ready() {
		status["status"] = "degraded"
		checks["analysis"] = "misconfigured"
		statusCode = http.StatusServiceUnavailable
	}

	JSON(w, statusCode, status)
}

// GetConfig returns the server configuration for the frontend.
func (h *HealthHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{"analysis_mode": h.mode}
	if h.cfg != nil {
		body["max_upload_bytes"] = h.cfg.MaxUploadBytes
		body["rate_limit_requests"] = h.cfg.RateLimit.Requests
		body["rate_limit_window_seconds"] = int64(h.cfg.RateLimit.Window.Seconds())
		body["model"] = h.cfg.Analysis.Model
	}
	JSON(w, http.StatusOK, body)
}
