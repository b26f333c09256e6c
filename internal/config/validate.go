package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateStores(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.entry_workers":          c.Pipeline.EntryWorkers,
		"pipeline.upload_workers":         c.Pipeline.UploadWorkers,
		"pipeline.processing_workers":     c.Pipeline.ProcessingWorkers,
		"pipeline.analysis_workers":       c.Pipeline.AnalysisWorkers,
		"pipeline.queue_depth":            c.Pipeline.QueueDepth,
		"pipeline.max_attempts":           c.Pipeline.MaxAttempts,
		"pipeline.image_timeout_seconds":  c.Pipeline.ImageTimeoutSeconds,
		"pipeline.video_timeout_seconds":  c.Pipeline.VideoTimeoutSeconds,
		"pipeline.poll_hard_cap_attempts": c.Pipeline.PollHardCapAttempts,
	}); err != nil {
		return err
	}
	if c.Pipeline.BackoffCapMs < c.Pipeline.BackoffBaseMs {
		return errors.New("pipeline.backoff_cap_ms must be >= pipeline.backoff_base_ms")
	}
	if c.Pipeline.PollCapMs < c.Pipeline.PollBaseMs {
		return errors.New("pipeline.poll_cap_ms must be >= pipeline.poll_base_ms")
	}
	if c.Pipeline.ExpiryMinAttempts > c.Pipeline.PollHardCapAttempts {
		return errors.New("pipeline.expiry_min_attempts must be <= pipeline.poll_hard_cap_attempts")
	}
	return nil
}

func (c *Config) validateStores() error {
	return ensurePositiveMap(map[string]int{
		"ledger.retention_days":        c.Ledger.RetentionDays,
		"dedup.window_seconds":         c.Dedup.WindowSeconds,
		"breaker.failure_limit":        c.Breaker.FailureLimit,
		"breaker.reset_window_seconds": c.Breaker.ResetWindowSeconds,
		"outbox.max_delivery_attempts": c.Outbox.MaxDeliveryAttempts,
	})
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
