package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/quernio/quern/pkg/log"
)

// Storage backend kinds.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StoragePebble = "pebble"
	StorageSQLite = "sqlite"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// DataDir holds persisted queue state for the file, pebble, and sqlite
	// backends.
	DataDir string `json:"dataDir" yaml:"dataDir"`
	// Storage selects the persistence backend.
	Storage string `json:"storage" yaml:"storage"`
	// Sync forces fsync-per-write on backends that support it.
	Sync bool `json:"sync" yaml:"sync"`
	// MaintenanceIntervalSeconds is the period of the background sweep.
	MaintenanceIntervalSeconds int `json:"maintenanceIntervalSeconds" yaml:"maintenanceIntervalSeconds"`
	// EventBuffer is the per-subscription event channel capacity.
	EventBuffer int `json:"eventBuffer" yaml:"eventBuffer"`
	// QueueDefaults applies to queues created without explicit options.
	QueueDefaults QueueDefaults `json:"queueDefaults" yaml:"queueDefaults"`
	// Log controls level and output format.
	Log log.Config `json:"log" yaml:"log"`
}

// QueueDefaults captures baseline delivery options.
type QueueDefaults struct {
	VisibilityTimeoutSeconds int `json:"visibilityTimeoutSeconds" yaml:"visibilityTimeoutSeconds"`
	MaxReceiveCount          int `json:"maxReceiveCount" yaml:"maxReceiveCount"`
	MessageRetentionSeconds  int `json:"messageRetentionSeconds" yaml:"messageRetentionSeconds"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:                    DefaultDataDir(),
		Storage:                    StorageFile,
		MaintenanceIntervalSeconds: 60,
		EventBuffer:                1024,
		QueueDefaults: QueueDefaults{
			VisibilityTimeoutSeconds: 30,
			MaxReceiveCount:          5,
			MessageRetentionSeconds:  4 * 24 * 60 * 60,
		},
		Log: log.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension), layered
// over the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate rejects values the broker cannot start with.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageFile, StoragePebble, StorageSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.Storage != StorageMemory && c.DataDir == "" {
		return fmt.Errorf("storage %q requires a data dir", c.Storage)
	}
	if c.MaintenanceIntervalSeconds <= 0 {
		return fmt.Errorf("maintenance interval must be positive, got %d", c.MaintenanceIntervalSeconds)
	}
	return nil
}
