package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Port != "8080" {
		t.Errorf("server port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.AI.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("AI base URL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.IdleTimeout != 30*time.Second {
		t.Errorf("idle timeout = %s, want 30s", cfg.AI.IdleTimeout)
	}
	if cfg.RateLimit.GenerationLimit != 50 || cfg.RateLimit.GenerationWindow != time.Hour {
		t.Errorf("generation limit = %d/%s, want 50/1h", cfg.RateLimit.GenerationLimit, cfg.RateLimit.GenerationWindow)
	}
	if cfg.RateLimit.RequestLimit != 100 || cfg.RateLimit.RequestWindow != time.Minute {
		t.Errorf("request limit = %d/%s, want 100/1m", cfg.RateLimit.RequestLimit, cfg.RateLimit.RequestWindow)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("AI_IDLE_TIMEOUT", "45s")
	t.Setenv("RATE_LIMIT_GENERATION_MAX", "10")
	t.Setenv("RATE_LIMIT_GENERATION_WINDOW", "1800")

	cfg := Load()

	if cfg.Server.Port != "9090" {
		t.Errorf("server port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.AI.IdleTimeout != 45*time.Second {
		t.Errorf("idle timeout = %s, want 45s", cfg.AI.IdleTimeout)
	}
	if cfg.RateLimit.GenerationLimit != 10 {
		t.Errorf("generation limit = %d, want 10", cfg.RateLimit.GenerationLimit)
	}
	// Bare numbers are treated as seconds.
	if cfg.RateLimit.GenerationWindow != 30*time.Minute {
		t.Errorf("generation window = %s, want 30m", cfg.RateLimit.GenerationWindow)
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("AI_IDLE_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_GENERATION_MAX", "lots")

	cfg := Load()

	if cfg.AI.IdleTimeout != 30*time.Second {
		t.Errorf("idle timeout = %s, want the 30s default", cfg.AI.IdleTimeout)
	}
	if cfg.RateLimit.GenerationLimit != 50 {
		t.Errorf("generation limit = %d, want the default 50", cfg.RateLimit.GenerationLimit)
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     "5433",
		User:     "app",
		Password: "secret",
		DBName:   "ai_manager",
		SSLMode:  "require",
	}
	want := "host=db.internal port=5433 user=app password=secret dbname=ai_manager sslmode=require"
	if got := db.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
