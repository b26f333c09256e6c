package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	WorkDir string `toml:"work_dir"`
}

// Pipeline contains stage queue sizing, retry, backoff, and timeout settings.
//
// The processing-check expiry heuristic (elapsed ceiling combined with a
// minimum attempt count) is tuned against one vendor's file API and is
// deliberately configurable rather than fixed.
type Pipeline struct {
	EntryWorkers      int `toml:"entry_workers"`
	UploadWorkers     int `toml:"upload_workers"`
	ProcessingWorkers int `toml:"processing_workers"`
	AnalysisWorkers   int `toml:"analysis_workers"`
	QueueDepth        int `toml:"queue_depth"`

	MaxAttempts   int `toml:"max_attempts"`
	BackoffBaseMs int `toml:"backoff_base_ms"`
	BackoffCapMs  int `toml:"backoff_cap_ms"`

	PollBaseMs           int `toml:"poll_base_ms"`
	PollCapMs            int `toml:"poll_cap_ms"`
	PollHardCapAttempts  int `toml:"poll_hard_cap_attempts"`
	ExpirySeconds        int `toml:"expiry_seconds"`
	ExpiryMinAttempts    int `toml:"expiry_min_attempts"`
	ProgressWindowSecond int `toml:"progress_window_seconds"`
	SlowNoticeAttempt    int `toml:"slow_notice_attempt"`

	ImageTimeoutSeconds int `toml:"image_timeout_seconds"`
	VideoTimeoutSeconds int `toml:"video_timeout_seconds"`
}

// Ledger contains transaction retention settings.
type Ledger struct {
	RetentionDays        int `toml:"retention_days"`
	SweepIntervalMinutes int `toml:"sweep_interval_minutes"`
}

// Dedup contains the inbound submission dedup window.
type Dedup struct {
	WindowSeconds        int `toml:"window_seconds"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

// Breaker contains circuit breaker thresholds for the inference client.
type Breaker struct {
	FailureLimit       int `toml:"failure_limit"`
	ResetWindowSeconds int `toml:"reset_window_seconds"`
}

// Outbox contains pending-notification recovery settings.
type Outbox struct {
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
	MaxDeliveryAttempts  int `toml:"max_delivery_attempts"`
}

// Inference contains connection settings for the media inference backend.
type Inference struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	CacheSize      int    `toml:"cache_size"`
}

// Transport contains connection settings for the chat transport bridge.
type Transport struct {
	BaseURL         string `toml:"base_url"`
	APIToken        string `toml:"api_token"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	DefaultLanguage string `toml:"default_language"`
}

// Server contains the inbound webhook listener settings. An empty bind
// address disables the listener.
type Server struct {
	Bind         string `toml:"bind"`
	WebhookToken string `toml:"webhook_token"`
}

// Notifications contains configuration for operator ntfy pushes.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Errors         bool   `toml:"errors"`
	Breaker        bool   `toml:"breaker"`
	Recovery       bool   `toml:"recovery"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Amelie.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and scratch directories
//   - Pipeline: stage worker pools, retry/backoff, poll and expiry heuristics
//   - Ledger: transaction retention
//   - Dedup: inbound submission dedup window
//   - Breaker: inference circuit breaker thresholds
//   - Outbox: pending-notification recovery sweep
//   - Inference: media inference backend connection
//   - Transport: chat transport bridge connection
//   - Server: inbound webhook listener
//   - Notifications: operator ntfy push settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Ledger        Ledger        `toml:"ledger"`
	Dedup         Dedup         `toml:"dedup"`
	Breaker       Breaker       `toml:"breaker"`
	Outbox        Outbox        `toml:"outbox"`
	Inference     Inference     `toml:"inference"`
	Transport     Transport     `toml:"transport"`
	Server        Server        `toml:"server"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/amelie/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("amelie.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.WorkDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
