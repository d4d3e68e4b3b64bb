// Package analysis is the request/response boundary to the generative-AI
// collaborator that reads profile and chat screenshots.
package analysis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/rizzcoach/internal/domain"
)

// DefaultModel is the collaborator model used by the direct strategy.
const DefaultModel = "gemini-2.5-flash"

// DefaultMIMEType is assumed when a request omits the image type.
const DefaultMIMEType = "image/png"

// Mode names a transport strategy.
type Mode string

const (
	ModeDirect  Mode = "direct"
	ModeProxied Mode = "proxied"
)

// Client performs the two analyses. Both strategies satisfy the same contract:
// a single attempt yields a validated record or an *Error.
type Client interface {
	AnalyzeProfile(ctx context.Context, req ProfileRequest) (*domain.ProfileRecord, error)
	AnalyzeChat(ctx context.Context, req ChatRequest) (*domain.ReplyAdvice, error)
	Mode() Mode
}

// ProfileRequest is the analyze-profile request body.
type ProfileRequest struct {
	Image    string `json:"image"`
	MIMEType string `json:"mimeType,omitempty"`
	Note     string `json:"note,omitempty"`
}

// ChatRequest is the analyze-chat request body. Image may be nil when a
// text note stands in for the screenshot.
type ChatRequest struct {
	Image          *string               `json:"image"`
	MIMEType       string                `json:"mimeType,omitempty"`
	ProfileContext *domain.ProfileRecord `json:"profileContext"`
	Note           string                `json:"note,omitempty"`
}

// HasImage reports whether a non-empty screenshot is attached.
func (r ChatRequest) HasImage() bool {
	return r.Image != nil && *r.Image != ""
}

// Validate rejects chat requests that carry neither a screenshot nor a note,
// or that lack the profile context.
func (r ChatRequest) Validate() error {
	if r.ProfileContext == nil {
		return newError(OpAnalyzeChat, ErrInvalidInput, "profile context required", nil)
	}
	if !r.HasImage() && strings.TrimSpace(r.Note) == "" {
		return newError(OpAnalyzeChat, ErrInvalidInput, "image or note required", nil)
	}
	return nil
}

// Validate rejects profile requests without a screenshot.
func (r ProfileRequest) Validate() error {
	if r.Image == "" {
		return newError(OpAnalyzeProfile, ErrInvalidInput, "profile image required", nil)
	}
	return nil
}

// Options configures transport selection.
type Options struct {
	APIKey   string
	Model    string
	ProxyURL string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Select picks the transport strategy once: a credential selects the direct
// strategy, otherwise requests go through the proxy. Neither available is a
// configuration error.
func Select(ctx context.Context, opts Options) (Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.APIKey != "" {
		opts.Logger.Info("Analysis transport selected", "mode", ModeDirect, "model", modelOrDefault(opts.Model))
		d, err := NewDirect(ctx, opts)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	if opts.ProxyURL != "" {
		opts.Logger.Info("Analysis transport selected", "mode", ModeProxied, "proxy_url", opts.ProxyURL)
		p, err := NewProxy(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, newError(OpSelect, ErrConfiguration, "neither GEMINI_API_KEY nor ANALYSIS_PROXY_URL is set", nil)
}

func modelOrDefault(model string) string {
	if model == "" {
		return DefaultModel
	}
	return model
}
