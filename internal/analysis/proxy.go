package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ashureev/rizzcoach/internal/domain"
)

// CodeConfiguration marks a proxy error body caused by a missing server credential.
const CodeConfiguration = "configuration_error"

const maxProxyResponseBytes = 1 << 20

// ErrorBody is the JSON error shape exchanged with the proxy endpoints.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Proxy forwards requests to the server-side analysis endpoints, which hold
// the credential.
type Proxy struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

// NewProxy validates the base URL and builds a proxied client.
func NewProxy(opts Options) (*Proxy, error) {
	u, err := url.Parse(strings.TrimSpace(opts.ProxyURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, newError(OpSelect, ErrConfiguration, fmt.Sprintf("invalid proxy URL %q", opts.ProxyURL), err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{
		base:   strings.TrimRight(u.String(), "/"),
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logger,
	}, nil
}

// Mode implements Client.
func (p *Proxy) Mode() Mode { return ModeProxied }

// AnalyzeProfile implements Client.
func (p *Proxy) AnalyzeProfile(ctx context.Context, req ProfileRequest) (*domain.ProfileRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := p.post(ctx, OpAnalyzeProfile, "/api/analyze-profile", req)
	if err != nil {
		return nil, err
	}
	return DecodeProfile(body)
}

// AnalyzeChat implements Client.
func (p *Proxy) AnalyzeChat(ctx context.Context, req ChatRequest) (*domain.ReplyAdvice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := p.post(ctx, OpAnalyzeChat, "/api/analyze-chat", req)
	if err != nil {
		return nil, err
	}
	return DecodeAdvice(body)
}

func (p *Proxy) post(ctx context.Context, op, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, newError(op, ErrInvalidInput, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, newError(op, ErrTransport, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(httpReq)
	if err != nil {
		p.logger.Warn("Analysis proxy unreachable", "op", op, "error", err)
		return nil, newError(op, ErrTransport, "proxy request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyResponseBytes))
	if err != nil {
		return nil, newError(op, ErrTransport, "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb ErrorBody
		_ = json.Unmarshal(body, &eb)
		reason := eb.Error
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		cause := fmt.Errorf("status %d", resp.StatusCode)
		p.logger.Warn("Analysis proxy returned error", "op", op, "status", resp.StatusCode, "code", eb.Code)
		if eb.Code == CodeConfiguration {
			return nil, newError(op, ErrConfiguration, reason, cause)
		}
		return nil, newError(op, ErrTransport, reason, cause)
	}
	return body, nil
}

// Kind returns the sentinel category of err, or nil when err is not an analysis error.
func Kind(err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return nil
}
