package cli

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/quernio/quern/internal/broker"
	"github.com/quernio/quern/internal/config"
	"github.com/quernio/quern/internal/queue"
	"github.com/quernio/quern/internal/storage"
	filestore "github.com/quernio/quern/internal/storage/file"
	memorystore "github.com/quernio/quern/internal/storage/memory"
	pebblestore "github.com/quernio/quern/internal/storage/pebble"
	sqlitestore "github.com/quernio/quern/internal/storage/sqlite"
	"github.com/quernio/quern/pkg/log"
)

// NewRoot constructs the quern root command with every command group
// registered.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "quern",
		Short:         "Quern embedded message broker CLI",
		Long:          "Quern is an embedded multi-queue message broker. This CLI manages queues and messages against a local data directory.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file (JSON or YAML)")
	root.PersistentFlags().String("data-dir", "", "Data directory (default: OS-specific application data directory)")
	root.PersistentFlags().String("storage", "", "Storage backend: memory|file|pebble|sqlite")
	root.PersistentFlags().Bool("sync", false, "Fsync after every write on backends that support it")
	root.PersistentFlags().String("log-level", os.Getenv("QUERN_LOG_LEVEL"), "Log level: debug|info|warn|error")
	root.PersistentFlags().String("log-format", os.Getenv("QUERN_LOG_FORMAT"), "Log format: text|json")

	root.AddCommand(
		NewQueueCommand(),
		newSendCommand(),
		newReceiveCommand(),
		newAckCommand(),
		newDeadLetterCommand(),
		newPeekCommand(),
		newRedriveCommand(),
		newChangeDelayCommand(),
		newExtendVisibilityCommand(),
		newSweepCommand(),
		newStatsCommand(),
		newWatchCommand(),
	)
	return root
}

// resolveConfig layers configuration: built-in defaults, then the config
// file, then QUERN_* environment variables, then flags.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var cfg config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
	} else {
		cfg = config.Default()
	}
	config.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("storage"); v != "" {
		cfg.Storage = v
	}
	if cmd.Flags().Changed("sync") {
		cfg.Sync, _ = cmd.Flags().GetBool("sync")
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openAdapter builds the storage backend selected by the config.
func openAdapter(cfg config.Config) (storage.Adapter, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memorystore.New(), nil
	case config.StorageFile:
		return filestore.Open(filestore.Options{Dir: filepath.Join(cfg.DataDir, "queues"), Sync: cfg.Sync})
	case config.StoragePebble:
		mode := pebblestore.FsyncModeNever
		if cfg.Sync {
			mode = pebblestore.FsyncModeAlways
		}
		db, err := pebblestore.Open(pebblestore.Options{DataDir: filepath.Join(cfg.DataDir, "pebble"), Fsync: mode})
		if err != nil {
			return nil, err
		}
		return pebblestore.NewStore(db), nil
	case config.StorageSQLite:
		return sqlitestore.Open(filepath.Join(cfg.DataDir, "quern.db"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

// withSystem resolves configuration, opens the storage adapter and a broker
// over it, runs fn, and tears both down.
func withSystem(cmd *cobra.Command, fn func(ctx context.Context, sys *broker.System) error) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := log.ApplyConfig(cfg.Log)
	log.RedirectStdLog(logger)

	adapter, err := openAdapter(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = adapter.Close() }()

	sys, err := broker.New(cmd.Context(), adapter,
		broker.WithLogger(logger),
		broker.WithDefaults(queue.Options{
			VisibilityTimeoutSeconds: cfg.QueueDefaults.VisibilityTimeoutSeconds,
			MaxReceiveCount:          cfg.QueueDefaults.MaxReceiveCount,
			MessageRetentionSeconds:  cfg.QueueDefaults.MessageRetentionSeconds,
		}),
		broker.WithMaintenanceInterval(time.Duration(cfg.MaintenanceIntervalSeconds)*time.Second),
		broker.WithEventBuffer(cfg.EventBuffer),
	)
	if err != nil {
		return err
	}
	defer func() { _ = sys.Close() }()
	return fn(cmd.Context(), sys)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderMessage returns a display form of a message: the body is shown as
// parsed JSON when it parses, as text when valid UTF-8, or base64 otherwise.
func renderMessage(m *queue.Message) map[string]any {
	out := map[string]any{
		"id":           m.ID,
		"queue":        m.QueueName,
		"sequence":     m.EnqueueSequence,
		"status":       m.Status,
		"receiveCount": m.ReceiveCount,
	}
	if m.Priority != 0 {
		out["priority"] = m.Priority
	}
	if len(m.Attributes) > 0 {
		out["attributes"] = m.Attributes
	}
	if len(m.Body) > 0 && (m.Body[0] == '{' || m.Body[0] == '[') {
		var v any
		if json.Unmarshal(m.Body, &v) == nil {
			out["body_json"] = v
			return out
		}
	}
	if utf8.Valid(m.Body) {
		out["body_text"] = string(m.Body)
		return out
	}
	out["body_b64"] = base64.StdEncoding.EncodeToString(m.Body)
	return out
}
