package analysis

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/ashureev/rizzcoach/internal/domain"
)

// Generator is the slice of the genai models API the direct strategy needs.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Direct calls the collaborator in-process with a locally held credential.
type Direct struct {
	gen    Generator
	model  string
	logger *slog.Logger
}

// NewDirect builds a genai-backed client.
func NewDirect(ctx context.Context, opts Options) (*Direct, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, newError(OpSelect, ErrConfiguration, "API key missing", nil)
	}
	httpClient := &http.Client{Timeout: opts.Timeout}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, newError(OpSelect, ErrConfiguration, "create genai client", err)
	}
	return NewDirectWithGenerator(client.Models, opts.Model, opts.Logger), nil
}

// NewDirectWithGenerator wires an existing generator; tests pass a fake.
func NewDirectWithGenerator(gen Generator, model string, logger *slog.Logger) *Direct {
	if logger == nil {
		logger = slog.Default()
	}
	return &Direct{gen: gen, model: modelOrDefault(model), logger: logger}
}

// Mode implements Client.
func (d *Direct) Mode() Mode { return ModeDirect }

// AnalyzeProfile implements Client.
func (d *Direct) AnalyzeProfile(ctx context.Context, req ProfileRequest) (*domain.ProfileRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	imagePart, err := inlineImage(OpAnalyzeProfile, req.Image, req.MIMEType)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{imagePart, {Text: profilePrompt(req.Note)}},
	}}
	body, err := d.generate(ctx, OpAnalyzeProfile, contents, profileSchema)
	if err != nil {
		return nil, err
	}
	return DecodeProfile(body)
}

// AnalyzeChat implements Client.
func (d *Direct) AnalyzeChat(ctx context.Context, req ChatRequest) (*domain.ReplyAdvice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	prompt, err := chatPrompt(req.ProfileContext, req.Note, req.HasImage())
	if err != nil {
		return nil, newError(OpAnalyzeChat, ErrInvalidInput, "profile context", err)
	}

	var parts []*genai.Part
	if req.HasImage() {
		imagePart, err := inlineImage(OpAnalyzeChat, *req.Image, req.MIMEType)
		if err != nil {
			return nil, err
		}
		parts = append(parts, imagePart)
	}
	parts = append(parts, &genai.Part{Text: prompt})

	body, err := d.generate(ctx, OpAnalyzeChat, []*genai.Content{{Role: "user", Parts: parts}}, chatSchema)
	if err != nil {
		return nil, err
	}
	return DecodeAdvice(body)
}

func (d *Direct) generate(ctx context.Context, op string, contents []*genai.Content, schema *genai.Schema) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	}
	resp, err := d.gen.GenerateContent(ctx, d.model, contents, cfg)
	if err != nil {
		d.logger.Warn("Analysis request failed", "op", op, "mode", ModeDirect, "error", err)
		return nil, newError(op, ErrTransport, "generate content", err)
	}
	if resp == nil {
		return nil, schemaError(op, "empty response")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, schemaError(op, "empty response")
	}
	d.logger.Debug("Analysis response received", "op", op, "bytes", len(text))
	return []byte(text), nil
}

func inlineImage(op, payload, mimeType string) (*genai.Part, error) {
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	if _, after, ok := strings.Cut(payload, ","); ok && strings.HasPrefix(payload, "data:") {
		payload = after
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, newError(op, ErrInvalidInput, "image is not valid base64", err)
	}
	return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}}, nil
}
