package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("unexpected port: %q", cfg.Port)
	}
	if cfg.Analysis.Timeout != 60*time.Second {
		t.Fatalf("unexpected analysis timeout: %v", cfg.Analysis.Timeout)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("unexpected upload limit: %d", cfg.MaxUploadBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ANALYSIS_TIMEOUT", "5s")
	t.Setenv("RATE_LIMIT_REQUESTS", "3")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CONVERSATION_LOG_ENABLED", "yes")
	t.Setenv("SESSION_IDLE_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Analysis.Timeout != 5*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.Analysis.Timeout)
	}
	if cfg.RateLimit.Requests != 3 {
		t.Fatalf("unexpected rate limit: %d", cfg.RateLimit.Requests)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("unexpected log level: %v", cfg.LogLevel)
	}
	if !cfg.ConversationLog.Enabled {
		t.Fatal("expected conversation log to be enabled")
	}
	if cfg.SessionIdleTTL != 24*time.Hour {
		t.Fatalf("expected fallback TTL, got %v", cfg.SessionIdleTTL)
	}
}

func TestValidateRejectsZeroLimits(t *testing.T) {
	t.Setenv("RATE_LIMIT_REQUESTS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"no frontend", Config{}, true},
		{"localhost", Config{FrontendURL: "http://localhost:5173"}, true},
		{"remote", Config{FrontendURL: "https://coach.example.com"}, false},
		{"production overrides", Config{AppEnv: "production"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.IsDevelopment(); got != tt.want {
				t.Fatalf("IsDevelopment() = %v, want %v", got, tt.want)
			}
		})
	}
}
