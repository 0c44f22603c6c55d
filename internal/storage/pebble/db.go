package pebblestore

import (
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
)

// FsyncMode selects when committed writes reach the WAL on disk.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs the WAL on every committed batch.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble coalesce WAL syncs within a window,
	// trading a bounded durability gap for commit throughput.
	FsyncModeInterval
	// FsyncModeNever issues no application-driven syncs. Pebble still syncs
	// on its own schedule.
	FsyncModeNever
)

const defaultSyncWindow = 5 * time.Millisecond

// Options configures the Pebble store wrapper.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Fsync selects the WAL sync policy.
	Fsync FsyncMode
	// FsyncInterval is the coalescing window for FsyncModeInterval.
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning. If nil, defaults are used.
	PebbleOptions *pebble.Options
}

// DB wraps a Pebble database together with the write options its commits
// should use.
type DB struct {
	inner *pebble.DB
	wopts *pebble.WriteOptions
}

// Open creates or opens a Pebble database at opts.DataDir.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblestore: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}

	wopts := pebble.NoSync
	switch opts.Fsync {
	case FsyncModeAlways:
		wopts = pebble.Sync
	case FsyncModeInterval:
		window := opts.FsyncInterval
		if window <= 0 {
			window = defaultSyncWindow
		}
		po.WALMinSyncInterval = func() time.Duration { return window }
	case FsyncModeNever:
	default:
		po.WALMinSyncInterval = func() time.Duration { return defaultSyncWindow }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	return &DB{inner: inner, wopts: wopts}, nil
}

// Close closes the underlying database. Safe on a nil receiver.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// NewBatch starts a batch for an atomic multi-key update.
func (db *DB) NewBatch() *pebble.Batch {
	return db.inner.NewBatch()
}

// CommitBatch commits b under the configured sync policy.
func (db *DB) CommitBatch(_ context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebblestore: nil batch")
	}
	return b.Commit(db.wopts)
}

// Get returns a copy of the value stored at key.
func (db *DB) Get(key []byte) ([]byte, error) {
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// NewIter opens a raw iterator over the database.
func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return db.inner.NewIter(opts)
}
