package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nunotfc/amelie/internal/config"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Ledger.RetentionDays != 7 {
		t.Fatalf("expected default retention 7 days, got %d", cfg.Ledger.RetentionDays)
	}
	if cfg.Dedup.WindowSeconds != 900 {
		t.Fatalf("expected default dedup window 900s, got %d", cfg.Dedup.WindowSeconds)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Breaker.FailureLimit != 5 {
		t.Fatalf("expected breaker default 5, got %d", cfg.Breaker.FailureLimit)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[pipeline]\nmax_attempts = 5\nvideo_timeout_seconds = 90\n\n[breaker]\nfailure_limit = 2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Pipeline.MaxAttempts != 5 {
		t.Fatalf("expected max attempts override 5, got %d", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Pipeline.VideoTimeoutSeconds != 90 {
		t.Fatalf("expected video timeout override 90, got %d", cfg.Pipeline.VideoTimeoutSeconds)
	}
	if cfg.Breaker.FailureLimit != 2 {
		t.Fatalf("expected breaker override 2, got %d", cfg.Breaker.FailureLimit)
	}
}

func TestValidateRejectsBadBackoff(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.BackoffBaseMs = 10_000
	cfg.Pipeline.BackoffCapMs = 100
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when backoff cap below base")
	}
}

func TestValidateRejectsExpiryAttemptsAboveHardCap(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.ExpiryMinAttempts = 20
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when expiry_min_attempts exceeds hard cap")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty sample config")
	}
}
