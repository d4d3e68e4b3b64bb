package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/rizzcoach/internal/analysis"
	"github.com/ashureev/rizzcoach/internal/identity"
)

// MsgConfigurationMissing is the body text when the server holds no credential.
const MsgConfigurationMissing = "Server configuration error: API Key missing"

// AnalyzeHandler exposes the collaborator endpoints that the proxied
// transport calls. It only serves when the server holds a credential.
type AnalyzeHandler struct {
	client  analysis.Client
	limiter *RateLimiter
	maxBody int64
	timeout time.Duration
}

// NewAnalyzeHandler creates the handler. A nil client answers every request
// with a configuration error.
func NewAnalyzeHandler(client analysis.Client, limiter *RateLimiter, maxUploadBytes int64, timeout time.Duration) *AnalyzeHandler {
	// Base64 inflates the image by a third; leave room for the JSON envelope.
	maxBody := maxUploadBytes/3*4 + 64<<10
	return &AnalyzeHandler{client: client, limiter: limiter, maxBody: maxBody, timeout: timeout}
}

// RegisterRoutes registers the analyze routes. Every method is routed so the
// handler itself can answer 405.
func (h *AnalyzeHandler) RegisterRoutes(r chi.Router) {
	r.HandleFunc("/api/analyze-profile", h.AnalyzeProfile)
	r.HandleFunc("/api/analyze-chat", h.AnalyzeChat)
}

// AnalyzeProfile handles /api/analyze-profile.
func (h *AnalyzeHandler) AnalyzeProfile(w http.ResponseWriter, r *http.Request) {
	if !h.precheck(w, r) {
		return
	}

	var req analysis.ProfileRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		Error(w, http.StatusBadRequest, "image is required")
		return
	}

	ctx, cancel := h.context(r.Context())
	defer cancel()
	record, err := h.client.AnalyzeProfile(ctx, req)
	if err != nil {
		h.writeAnalysisError(w, r, err, "Failed to analyze profile")
		return
	}
	JSON(w, http.StatusOK, record)
}

// AnalyzeChat handles /api/analyze-chat.
func (h *AnalyzeHandler) AnalyzeChat(w http.ResponseWriter, r *http.Request) {
	if !h.precheck(w, r) {
		return
	}

	var req analysis.ChatRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		Error(w, http.StatusBadRequest, "profileContext and an image or note are required")
		return
	}

	ctx, cancel := h.context(r.Context())
	defer cancel()
	advice, err := h.client.AnalyzeChat(ctx, req)
	if err != nil {
		h.writeAnalysisError(w, r, err, "Failed to analyze chat")
		return
	}
	JSON(w, http.StatusOK, advice)
}

func (h *AnalyzeHandler) precheck(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	if h.client == nil {
		slog.Error("Analyze endpoint called without API key configured")
		ErrorCode(w, http.StatusInternalServerError, MsgConfigurationMissing, analysis.CodeConfiguration)
		return false
	}
	if h.limiter != nil {
		key := identity.UserIDFromContext(r.Context())
		if key == "" {
			key = identity.IPFromRequest(r)
		}
		if !h.limiter.Allow(key) {
			Error(w, http.StatusTooManyRequests, "rate limit exceeded")
			return false
		}
	}
	return true
}

func (h *AnalyzeHandler) context(parent context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, h.timeout)
}

func (h *AnalyzeHandler) writeAnalysisError(w http.ResponseWriter, r *http.Request, err error, message string) {
	slog.Warn("Analysis failed", "path", r.URL.Path, "error", err)
	switch {
	case errors.Is(err, analysis.ErrConfiguration):
		ErrorCode(w, http.StatusInternalServerError, MsgConfigurationMissing, analysis.CodeConfiguration)
	case errors.Is(err, analysis.ErrInvalidInput):
		Error(w, http.StatusBadRequest, "invalid analysis input")
	default:
		Error(w, http.StatusBadGateway, message)
	}
}
