package config

const (
	defaultDataDir = "~/.local/share/amelie"
	defaultLogDir  = "~/.local/share/amelie/logs"
	defaultWorkDir = "~/.local/share/amelie/work"

	defaultEntryWorkers      = 1
	defaultUploadWorkers     = 2
	defaultProcessingWorkers = 2
	defaultAnalysisWorkers   = 2
	defaultQueueDepth        = 64

	defaultMaxAttempts   = 3
	defaultBackoffBaseMs = 500
	defaultBackoffCapMs  = 30_000

	defaultPollBaseMs          = 1_000
	defaultPollCapMs           = 30_000
	defaultPollHardCapAttempts = 10
	defaultExpirySeconds       = 120
	defaultExpiryMinAttempts   = 3
	defaultProgressWindowSecs  = 20
	defaultSlowNoticeAttempt   = 10

	defaultImageTimeoutSeconds = 45
	defaultVideoTimeoutSeconds = 120

	defaultLedgerRetentionDays  = 7
	defaultLedgerSweepMinutes   = 60
	defaultDedupWindowSeconds   = 900
	defaultDedupSweepSeconds    = 60
	defaultBreakerFailureLimit  = 5
	defaultBreakerResetSeconds  = 60
	defaultOutboxSweepSeconds   = 30
	defaultOutboxMaxAttempts    = 5
	defaultInferenceBaseURL     = "https://generativelanguage.googleapis.com"
	defaultInferenceModel       = "gemini-2.0-flash"
	defaultInferenceTimeoutSecs = 30
	defaultInferenceCacheSize   = 16
	defaultTransportTimeoutSecs = 15
	defaultTransportLanguage    = "pt-BR"
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			WorkDir: defaultWorkDir,
		},
		Pipeline: Pipeline{
			EntryWorkers:         defaultEntryWorkers,
			UploadWorkers:        defaultUploadWorkers,
			ProcessingWorkers:    defaultProcessingWorkers,
			AnalysisWorkers:      defaultAnalysisWorkers,
			QueueDepth:           defaultQueueDepth,
			MaxAttempts:          defaultMaxAttempts,
			BackoffBaseMs:        defaultBackoffBaseMs,
			BackoffCapMs:         defaultBackoffCapMs,
			PollBaseMs:           defaultPollBaseMs,
			PollCapMs:            defaultPollCapMs,
			PollHardCapAttempts:  defaultPollHardCapAttempts,
			ExpirySeconds:        defaultExpirySeconds,
			ExpiryMinAttempts:    defaultExpiryMinAttempts,
			ProgressWindowSecond: defaultProgressWindowSecs,
			SlowNoticeAttempt:    defaultSlowNoticeAttempt,
			ImageTimeoutSeconds:  defaultImageTimeoutSeconds,
			VideoTimeoutSeconds:  defaultVideoTimeoutSeconds,
		},
		Ledger: Ledger{
			RetentionDays:        defaultLedgerRetentionDays,
			SweepIntervalMinutes: defaultLedgerSweepMinutes,
		},
		Dedup: Dedup{
			WindowSeconds:        defaultDedupWindowSeconds,
			SweepIntervalSeconds: defaultDedupSweepSeconds,
		},
		Breaker: Breaker{
			FailureLimit:       defaultBreakerFailureLimit,
			ResetWindowSeconds: defaultBreakerResetSeconds,
		},
		Outbox: Outbox{
			SweepIntervalSeconds: defaultOutboxSweepSeconds,
			MaxDeliveryAttempts:  defaultOutboxMaxAttempts,
		},
		Inference: Inference{
			BaseURL:        defaultInferenceBaseURL,
			Model:          defaultInferenceModel,
			TimeoutSeconds: defaultInferenceTimeoutSecs,
			CacheSize:      defaultInferenceCacheSize,
		},
		Transport: Transport{
			TimeoutSeconds:  defaultTransportTimeoutSecs,
			DefaultLanguage: defaultTransportLanguage,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Errors:         true,
			Breaker:        true,
			Recovery:       true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
