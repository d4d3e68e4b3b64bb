package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/rizzcoach/internal/analysis"
)

const profileFixture = `{
  "basicInfo": {"name": "Amy", "age": "28"},
  "interests": ["hiking"],
  "personalityTraits": ["outgoing"],
  "summary": "Loves the outdoors.",
  "openingLines": [{"style": "A", "content": "Hi Amy", "explanation": "simple"}]
}`

const adviceFixture = `{
  "situationAnalysis": "She is engaged.",
  "suggestions": [{"style": "B", "content": "Ask about the trail", "explanation": "shows interest"}],
  "coachTip": "Keep it light."
}`

func executeCLI(t *testing.T, env map[string]string, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd(deps{
		newClient: analysis.Select,
		getenv:    func(k string) string { return env[k] },
	})
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	path := filepath.Join(dir, "shot.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

type recorded struct {
	path string
	body map[string]any
}

func fakeCoachServer(t *testing.T, reply string, got *recorded) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, nil, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestProfileThroughProxy(t *testing.T) {
	dir := t.TempDir()
	shot := writePNG(t, dir)

	var got recorded
	srv := fakeCoachServer(t, profileFixture, &got)

	stdout, _, err := executeCLI(t, map[string]string{"ANALYSIS_PROXY_URL": srv.URL},
		"profile", shot, "--note", "met at a cafe")
	require.NoError(t, err)

	assert.Equal(t, "/api/analyze-profile", got.path)
	assert.Equal(t, "image/png", got.body["mimeType"])
	assert.Equal(t, "met at a cafe", got.body["note"])
	assert.NotEmpty(t, got.body["image"])

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "Loves the outdoors.", out["summary"])
}

func TestChatWithNoteOnly(t *testing.T) {
	dir := t.TempDir()
	profilePath := filepath.Join(dir, "amy.json")
	require.NoError(t, os.WriteFile(profilePath, []byte(profileFixture), 0o600))

	var got recorded
	srv := fakeCoachServer(t, adviceFixture, &got)

	stdout, _, err := executeCLI(t, nil,
		"--proxy-url", srv.URL,
		"chat", "--profile", profilePath, "--note", "she asked about my weekend")
	require.NoError(t, err)

	assert.Equal(t, "/api/analyze-chat", got.path)
	assert.Nil(t, got.body["image"])
	assert.Contains(t, stdout, "Keep it light.")
}

func TestChatRequiresImageOrNote(t *testing.T) {
	dir := t.TempDir()
	profilePath := filepath.Join(dir, "amy.json")
	require.NoError(t, os.WriteFile(profilePath, []byte(profileFixture), 0o600))

	_, _, err := executeCLI(t, map[string]string{"ANALYSIS_PROXY_URL": "http://127.0.0.1:1"},
		"chat", "--profile", profilePath)
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrInvalidInput)
}

func TestChatRequiresProfileFlag(t *testing.T) {
	_, _, err := executeCLI(t, nil, "chat", "--note", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "profile" not set`)
}

func TestProfileWithoutCredential(t *testing.T) {
	shot := writePNG(t, t.TempDir())

	_, _, err := executeCLI(t, nil, "profile", shot)
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrConfiguration)
}

func TestProfileRejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello there, not an image"), 0o600))

	_, _, err := executeCLI(t, map[string]string{"ANALYSIS_PROXY_URL": "http://127.0.0.1:1"}, "profile", path)
	require.Error(t, err)
}
