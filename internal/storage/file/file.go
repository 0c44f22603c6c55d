// Package filestore persists one JSON file per queue under a data
// directory. Writes go through a temp file and rename so a crash never
// leaves a half-written snapshot behind.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/quernio/quern/internal/queue"
	"github.com/quernio/quern/internal/storage"
)

const snapshotExt = ".json"

// Options configures the file adapter.
type Options struct {
	// Dir is the snapshot directory, created if missing.
	Dir string
	// Sync forces an fsync of the snapshot file and its directory on every
	// save. Slower, but a power loss cannot roll back an acknowledged
	// write.
	Sync bool
}

// Store implements storage.Adapter on a directory of JSON files.
type Store struct {
	dir  string
	sync bool
	mu   sync.Mutex
}

// Open prepares the snapshot directory.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("filestore: Options.Dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: opts.Dir, sync: opts.Sync}, nil
}

// Ping verifies the directory is writable.
func (s *Store) Ping(context.Context) error {
	f, err := os.CreateTemp(s.dir, ".ping-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// ListQueues scans the directory for snapshot files.
func (s *Store) ListQueues(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), snapshotExt)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// LoadQueue reads and decodes one snapshot file.
func (s *Store) LoadQueue(_ context.Context, name string) (*queue.State, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrQueueNotFound
		}
		return nil, fmt.Errorf("read queue %q: %w", name, err)
	}

	var st queue.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode queue %q: %w", name, err)
	}
	return &st, nil
}

// SaveQueue writes the snapshot to a temp file in the same directory, then
// renames it over the previous one.
func (s *Store) SaveQueue(_ context.Context, name string, state *queue.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode queue %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if s.sync {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("sync snapshot: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	if s.sync {
		return s.syncDir()
	}
	return nil
}

// DeleteQueue removes the snapshot file.
func (s *Store) DeleteQueue(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return storage.ErrQueueNotFound
		}
		return fmt.Errorf("delete queue %q: %w", name, err)
	}
	if s.sync {
		return s.syncDir()
	}
	return nil
}

// Close is a no-op; every save is already flushed on return.
func (s *Store) Close() error { return nil }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+snapshotExt)
}

func (s *Store) syncDir() error {
	d, err := os.Open(s.dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
