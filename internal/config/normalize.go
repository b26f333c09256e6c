package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeStores()
	c.normalizeInference()
	c.normalizeTransport()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	p := &c.Pipeline
	if p.EntryWorkers <= 0 {
		p.EntryWorkers = defaultEntryWorkers
	}
	if p.UploadWorkers <= 0 {
		p.UploadWorkers = defaultUploadWorkers
	}
	if p.ProcessingWorkers <= 0 {
		p.ProcessingWorkers = defaultProcessingWorkers
	}
	if p.AnalysisWorkers <= 0 {
		p.AnalysisWorkers = defaultAnalysisWorkers
	}
	if p.QueueDepth <= 0 {
		p.QueueDepth = defaultQueueDepth
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BackoffBaseMs <= 0 {
		p.BackoffBaseMs = defaultBackoffBaseMs
	}
	if p.BackoffCapMs <= 0 {
		p.BackoffCapMs = defaultBackoffCapMs
	}
	if p.PollBaseMs <= 0 {
		p.PollBaseMs = defaultPollBaseMs
	}
	if p.PollCapMs <= 0 {
		p.PollCapMs = defaultPollCapMs
	}
	if p.PollHardCapAttempts <= 0 {
		p.PollHardCapAttempts = defaultPollHardCapAttempts
	}
	if p.ExpirySeconds <= 0 {
		p.ExpirySeconds = defaultExpirySeconds
	}
	if p.ExpiryMinAttempts <= 0 {
		p.ExpiryMinAttempts = defaultExpiryMinAttempts
	}
	if p.ProgressWindowSecond <= 0 {
		p.ProgressWindowSecond = defaultProgressWindowSecs
	}
	if p.SlowNoticeAttempt <= 0 {
		p.SlowNoticeAttempt = defaultSlowNoticeAttempt
	}
	if p.ImageTimeoutSeconds <= 0 {
		p.ImageTimeoutSeconds = defaultImageTimeoutSeconds
	}
	if p.VideoTimeoutSeconds <= 0 {
		p.VideoTimeoutSeconds = defaultVideoTimeoutSeconds
	}
}

func (c *Config) normalizeStores() {
	if c.Ledger.RetentionDays <= 0 {
		c.Ledger.RetentionDays = defaultLedgerRetentionDays
	}
	if c.Ledger.SweepIntervalMinutes <= 0 {
		c.Ledger.SweepIntervalMinutes = defaultLedgerSweepMinutes
	}
	if c.Dedup.WindowSeconds <= 0 {
		c.Dedup.WindowSeconds = defaultDedupWindowSeconds
	}
	if c.Dedup.SweepIntervalSeconds <= 0 {
		c.Dedup.SweepIntervalSeconds = defaultDedupSweepSeconds
	}
	if c.Breaker.FailureLimit <= 0 {
		c.Breaker.FailureLimit = defaultBreakerFailureLimit
	}
	if c.Breaker.ResetWindowSeconds <= 0 {
		c.Breaker.ResetWindowSeconds = defaultBreakerResetSeconds
	}
	if c.Outbox.SweepIntervalSeconds <= 0 {
		c.Outbox.SweepIntervalSeconds = defaultOutboxSweepSeconds
	}
	if c.Outbox.MaxDeliveryAttempts <= 0 {
		c.Outbox.MaxDeliveryAttempts = defaultOutboxMaxAttempts
	}
}

func (c *Config) normalizeInference() {
	c.Inference.APIKey = strings.TrimSpace(c.Inference.APIKey)
	if c.Inference.APIKey == "" {
		if value, ok := os.LookupEnv("AMELIE_INFERENCE_API_KEY"); ok {
			c.Inference.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
			c.Inference.APIKey = strings.TrimSpace(value)
		}
	}
	c.Inference.BaseURL = strings.TrimSpace(c.Inference.BaseURL)
	if c.Inference.BaseURL == "" {
		c.Inference.BaseURL = defaultInferenceBaseURL
	}
	c.Inference.Model = strings.TrimSpace(c.Inference.Model)
	if c.Inference.Model == "" {
		c.Inference.Model = defaultInferenceModel
	}
	if c.Inference.TimeoutSeconds <= 0 {
		c.Inference.TimeoutSeconds = defaultInferenceTimeoutSecs
	}
	if c.Inference.CacheSize <= 0 {
		c.Inference.CacheSize = defaultInferenceCacheSize
	}
}

func (c *Config) normalizeTransport() {
	c.Transport.BaseURL = strings.TrimSpace(c.Transport.BaseURL)
	c.Transport.APIToken = strings.TrimSpace(c.Transport.APIToken)
	if c.Transport.APIToken == "" {
		if value, ok := os.LookupEnv("AMELIE_TRANSPORT_TOKEN"); ok {
			c.Transport.APIToken = strings.TrimSpace(value)
		}
	}
	if c.Transport.TimeoutSeconds <= 0 {
		c.Transport.TimeoutSeconds = defaultTransportTimeoutSecs
	}
	c.Transport.DefaultLanguage = strings.TrimSpace(c.Transport.DefaultLanguage)
	if c.Transport.DefaultLanguage == "" {
		c.Transport.DefaultLanguage = defaultTransportLanguage
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
