package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(origins []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	called := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(method, "/api/sessions", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, called
}

func TestCORSExplicitOriginAllowsCredentials(t *testing.T) {
	rec, called := serveCORS([]string{"http://localhost:5173"}, http.MethodGet, "http://localhost:5173")
	if !called {
		t.Fatal("next handler not called")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials for explicit origin")
	}
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	rec, _ := serveCORS([]string{"*"}, http.MethodGet, "http://evil.example")
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://evil.example" {
		t.Fatal("expected origin echoed for wildcard")
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatal("wildcard must not allow credentials")
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	rec, called := serveCORS([]string{"http://localhost:5173"}, http.MethodGet, "http://evil.example")
	if !called {
		t.Fatal("next handler not called")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected CORS headers for unknown origin")
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	rec, called := serveCORS([]string{"*"}, http.MethodOptions, "http://localhost:5173")
	if called {
		t.Fatal("preflight reached next handler")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") != "GET, POST, PATCH, DELETE, OPTIONS" {
		t.Fatalf("unexpected methods %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestOrigins(t *testing.T) {
	if got := Origins(""); len(got) != 1 || got[0] != "*" {
		t.Fatalf("unexpected default origins %v", got)
	}
	if got := Origins("https://coach.example"); got[0] != "https://coach.example" {
		t.Fatalf("unexpected origins %v", got)
	}
}
