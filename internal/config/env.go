package config

import (
	"os"
	"strconv"
)

// FromEnv overlays QUERN_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("QUERN_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("QUERN_STORAGE"); v != "" {
		cfg.Storage = v
	}
	if v := os.Getenv("QUERN_SYNC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sync = b
		}
	}
	if v := os.Getenv("QUERN_MAINTENANCE_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaintenanceIntervalSeconds = n
		}
	}
	if v := os.Getenv("QUERN_EVENT_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventBuffer = n
		}
	}
	if v := os.Getenv("QUERN_QUEUE_DEFAULTS_VISIBILITY_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueDefaults.VisibilityTimeoutSeconds = n
		}
	}
	if v := os.Getenv("QUERN_QUEUE_DEFAULTS_MAX_RECEIVE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueDefaults.MaxReceiveCount = n
		}
	}
	if v := os.Getenv("QUERN_QUEUE_DEFAULTS_MESSAGE_RETENTION_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueDefaults.MessageRetentionSeconds = n
		}
	}
	if v := os.Getenv("QUERN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("QUERN_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
