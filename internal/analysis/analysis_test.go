package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/ashureev/rizzcoach/internal/domain"
)

const validProfileJSON = `{
  "basicInfo": {"name": "Amy", "age": "25"},
  "interests": ["hiking", "coffee"],
  "personalityTraits": ["curious"],
  "summary": "Outdoorsy and warm.",
  "openingLines": [
    {"style": "A", "content": "Hi", "explanation": "light"},
    {"style": "B", "content": "Hey", "explanation": "warm"}
  ]
}`

const validAdviceJSON = `{
  "situationAnalysis": "She is interested.",
  "suggestions": [{"style": "A", "content": "Sure!", "explanation": "keeps it light"}],
  "coachTip": "Keep the momentum."
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func imagePayload() string {
	return base64.StdEncoding.EncodeToString([]byte("\x89PNG fake"))
}

func testProfile() *domain.ProfileRecord {
	p, err := DecodeProfile([]byte(validProfileJSON))
	if err != nil {
		panic(err)
	}
	return p
}

type fakeGenerator struct {
	text     string
	err      error
	calls    atomic.Int32
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	model    string
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls.Add(1)
	f.model = model
	f.contents = contents
	f.config = config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestDecodeProfile(t *testing.T) {
	t.Parallel()

	p, err := DecodeProfile([]byte(validProfileJSON))
	require.NoError(t, err)
	assert.Equal(t, "Amy", p.Name())
	assert.Len(t, p.OpeningLines, 2)
}

func TestDecodeProfileRejectsContractViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"not json", "sorry, I cannot help"},
		{"array", "[]"},
		{"missing basicInfo", `{"interests":[],"personalityTraits":[],"summary":"x","openingLines":[{"style":"a","content":"b","explanation":"c"}]}`},
		{"missing summary", `{"basicInfo":{},"interests":[],"personalityTraits":[],"openingLines":[{"style":"a","content":"b","explanation":"c"}]}`},
		{"empty openingLines", `{"basicInfo":{},"interests":[],"personalityTraits":[],"summary":"x","openingLines":[]}`},
		{"incomplete suggestion", `{"basicInfo":{},"interests":[],"personalityTraits":[],"summary":"x","openingLines":[{"style":"a","content":""}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeProfile([]byte(tt.body))
			require.ErrorIs(t, err, ErrSchema)
		})
	}
}

func TestDecodeAdviceRejectsMissingCoachTip(t *testing.T) {
	t.Parallel()

	_, err := DecodeAdvice([]byte(`{"situationAnalysis":"x","suggestions":[{"style":"a","content":"b","explanation":"c"}]}`))
	require.ErrorIs(t, err, ErrSchema)

	advice, err := DecodeAdvice([]byte(validAdviceJSON))
	require.NoError(t, err)
	assert.Equal(t, "Keep the momentum.", advice.CoachTip)
}

func TestDirectAnalyzeProfile(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{text: validProfileJSON}
	client := NewDirectWithGenerator(gen, "", testLogger())

	p, err := client.AnalyzeProfile(context.Background(), ProfileRequest{Image: imagePayload()})
	require.NoError(t, err)
	assert.Equal(t, "Amy", p.Name())
	assert.Equal(t, DefaultModel, gen.model)
	assert.Equal(t, "application/json", gen.config.ResponseMIMEType)
	require.Len(t, gen.contents, 1)

	parts := gen.contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, DefaultMIMEType, parts[0].InlineData.MIMEType)
	assert.NotEmpty(t, parts[1].Text)
}

func TestDirectAnalyzeChatWithoutImage(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{text: validAdviceJSON}
	client := NewDirectWithGenerator(gen, "custom-model", testLogger())

	advice, err := client.AnalyzeChat(context.Background(), ChatRequest{
		ProfileContext: testProfile(),
		Note:           "she said she likes cats",
	})
	require.NoError(t, err)
	assert.Len(t, advice.Suggestions, 1)
	assert.Equal(t, "custom-model", gen.model)

	parts := gen.contents[0].Parts
	require.Len(t, parts, 1)
	assert.Contains(t, parts[0].Text, "使用者提供的備註描述")
	assert.Contains(t, parts[0].Text, "she said she likes cats")
	assert.Contains(t, parts[0].Text, `"name":"Amy"`)
}

func TestDirectAnalyzeChatImageFirst(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{text: validAdviceJSON}
	client := NewDirectWithGenerator(gen, "", testLogger())
	img := imagePayload()

	_, err := client.AnalyzeChat(context.Background(), ChatRequest{Image: &img, MIMEType: "image/jpeg", ProfileContext: testProfile()})
	require.NoError(t, err)

	parts := gen.contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "image/jpeg", parts[0].InlineData.MIMEType)
	assert.Contains(t, parts[1].Text, "圖片中的對話內容")
}

func TestDirectRejectsEmptyChatWithoutCalling(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{text: validAdviceJSON}
	client := NewDirectWithGenerator(gen, "", testLogger())

	_, err := client.AnalyzeChat(context.Background(), ChatRequest{ProfileContext: testProfile(), Note: "   "})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, gen.calls.Load())
}

func TestDirectErrorMapping(t *testing.T) {
	t.Parallel()

	t.Run("transport", func(t *testing.T) {
		client := NewDirectWithGenerator(&fakeGenerator{err: errors.New("connection reset")}, "", testLogger())
		_, err := client.AnalyzeProfile(context.Background(), ProfileRequest{Image: imagePayload()})
		require.ErrorIs(t, err, ErrTransport)
		assert.Equal(t, ErrTransport, Kind(err))
	})

	t.Run("empty text", func(t *testing.T) {
		client := NewDirectWithGenerator(&fakeGenerator{text: "  "}, "", testLogger())
		_, err := client.AnalyzeProfile(context.Background(), ProfileRequest{Image: imagePayload()})
		require.ErrorIs(t, err, ErrSchema)
	})

	t.Run("bad base64", func(t *testing.T) {
		gen := &fakeGenerator{text: validProfileJSON}
		client := NewDirectWithGenerator(gen, "", testLogger())
		_, err := client.AnalyzeProfile(context.Background(), ProfileRequest{Image: "%%%"})
		require.ErrorIs(t, err, ErrInvalidInput)
		assert.Zero(t, gen.calls.Load())
	})
}

func TestProxyRoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		switch r.URL.Path {
		case "/api/analyze-profile":
			var req ProfileRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.NotEmpty(t, req.Image)
			_, _ = io.WriteString(w, validProfileJSON)
		case "/api/analyze-chat":
			var req ChatRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Nil(t, req.Image)
			assert.NotNil(t, req.ProfileContext)
			_, _ = io.WriteString(w, validAdviceJSON)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := NewProxy(Options{ProxyURL: srv.URL + "/", Logger: testLogger()})
	require.NoError(t, err)
	assert.Equal(t, ModeProxied, client.Mode())

	p, err := client.AnalyzeProfile(context.Background(), ProfileRequest{Image: imagePayload()})
	require.NoError(t, err)
	assert.Equal(t, "Amy", p.Name())

	advice, err := client.AnalyzeChat(context.Background(), ChatRequest{ProfileContext: p, Note: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "She is interested.", advice.SituationAnalysis)
}

func TestProxyErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"configuration", http.StatusInternalServerError, `{"error":"Server configuration error: API Key missing","code":"configuration_error"}`, ErrConfiguration},
		{"upstream failure", http.StatusBadGateway, `{"error":"boom"}`, ErrTransport},
		{"html error page", http.StatusServiceUnavailable, `<html>down</html>`, ErrTransport},
		{"schema violation", http.StatusOK, `{"situationAnalysis":"x"}`, ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			client, err := NewProxy(Options{ProxyURL: srv.URL, Logger: testLogger()})
			require.NoError(t, err)

			_, err = client.AnalyzeChat(context.Background(), ChatRequest{ProfileContext: testProfile(), Note: "hi"})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestProxyUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewProxy(Options{ProxyURL: url, Logger: testLogger()})
	require.NoError(t, err)

	_, err = client.AnalyzeProfile(context.Background(), ProfileRequest{Image: imagePayload()})
	require.ErrorIs(t, err, ErrTransport)
}

func TestSelect(t *testing.T) {
	t.Parallel()

	_, err := Select(context.Background(), Options{Logger: testLogger()})
	require.ErrorIs(t, err, ErrConfiguration)

	c, err := Select(context.Background(), Options{ProxyURL: "http://localhost:8080", Logger: testLogger()})
	require.NoError(t, err)
	assert.Equal(t, ModeProxied, c.Mode())

	_, err = Select(context.Background(), Options{ProxyURL: "not a url", Logger: testLogger()})
	require.ErrorIs(t, err, ErrConfiguration)

	c, err = Select(context.Background(), Options{APIKey: "test-key", ProxyURL: "http://localhost:8080", Logger: testLogger()})
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, c.Mode())
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	err := newError(OpAnalyzeChat, ErrTransport, "proxy request", errors.New("dial tcp"))
	assert.True(t, strings.HasPrefix(err.Error(), "analyze_chat: analysis transport failure: proxy request"))
	assert.ErrorIs(t, err, ErrTransport)
}
