package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Storage != StorageFile {
		t.Fatalf("default storage should be file, got %q", cfg.Storage)
	}
	if cfg.MaintenanceIntervalSeconds != 60 {
		t.Fatalf("maintenance interval default")
	}
	if cfg.QueueDefaults.VisibilityTimeoutSeconds != 30 || cfg.QueueDefaults.MaxReceiveCount != 5 {
		t.Fatalf("queue defaults: %+v", cfg.QueueDefaults)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "quern.json")
	data := []byte(`{"storage":"pebble","dataDir":"/tmp/quern-data","maintenanceIntervalSeconds":15,"queueDefaults":{"visibilityTimeoutSeconds":10,"maxReceiveCount":2,"messageRetentionSeconds":120},"log":{"level":"debug","format":"json"}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage != StoragePebble || cfg.DataDir != "/tmp/quern-data" {
		t.Fatalf("storage fields: %+v", cfg)
	}
	if cfg.MaintenanceIntervalSeconds != 15 {
		t.Fatalf("expected 15")
	}
	if cfg.QueueDefaults.VisibilityTimeoutSeconds != 10 {
		t.Fatalf("expected 10")
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log config: %+v", cfg.Log)
	}
	// Untouched fields keep their defaults.
	if cfg.EventBuffer != 1024 {
		t.Fatalf("event buffer default lost: %d", cfg.EventBuffer)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "quern.yaml")
	data := []byte("storage: sqlite\ndataDir: /tmp/quern-data\nsync: true\nqueueDefaults:\n  maxReceiveCount: 3\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage != StorageSQLite || !cfg.Sync {
		t.Fatalf("yaml fields: %+v", cfg)
	}
	if cfg.QueueDefaults.MaxReceiveCount != 3 {
		t.Fatalf("expected 3")
	}
	if cfg.QueueDefaults.VisibilityTimeoutSeconds != 30 {
		t.Fatalf("partial yaml should keep defaults: %+v", cfg.QueueDefaults)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("QUERN_STORAGE", "memory")
	os.Setenv("QUERN_MAINTENANCE_INTERVAL_SECONDS", "5")
	os.Setenv("QUERN_QUEUE_DEFAULTS_MAX_RECEIVE_COUNT", "9")
	os.Setenv("QUERN_LOG_LEVEL", "warn")
	t.Cleanup(func() {
		os.Unsetenv("QUERN_STORAGE")
		os.Unsetenv("QUERN_MAINTENANCE_INTERVAL_SECONDS")
		os.Unsetenv("QUERN_QUEUE_DEFAULTS_MAX_RECEIVE_COUNT")
		os.Unsetenv("QUERN_LOG_LEVEL")
	})
	FromEnv(&cfg)
	if cfg.Storage != StorageMemory {
		t.Fatalf("env override storage")
	}
	if cfg.MaintenanceIntervalSeconds != 5 {
		t.Fatalf("env override interval")
	}
	if cfg.QueueDefaults.MaxReceiveCount != 9 {
		t.Fatalf("env override max receive count")
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("env override log level")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Storage = "cloud"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown storage should fail")
	}

	cfg = Default()
	cfg.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("file storage without data dir should fail")
	}
	cfg.Storage = StorageMemory
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory storage needs no data dir: %v", err)
	}

	cfg = Default()
	cfg.MaintenanceIntervalSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero interval should fail")
	}
}
