package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/nunotfc/amelie/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Inference.APIKey = "test"
	cfg.Transport.BaseURL = "http://127.0.0.1:0"
	cfg.Transport.APIToken = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithInferenceKey sets the inference API key on the test config.
func WithInferenceKey(key string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Inference.APIKey = key
	}
}

// WithMaxAttempts overrides the stage retry ceiling on the test config.
func WithMaxAttempts(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.MaxAttempts = n
	}
}
