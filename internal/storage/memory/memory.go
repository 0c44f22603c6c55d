// Package memorystore keeps queue snapshots in process memory. Snapshots
// round-trip through JSON so stored state never aliases caller state.
package memorystore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/quernio/quern/internal/queue"
	"github.com/quernio/quern/internal/storage"
)

// Store implements storage.Adapter in memory.
type Store struct {
	mu     sync.RWMutex
	queues map[string][]byte
}

// New returns an empty in-memory adapter.
func New() *Store {
	return &Store{queues: make(map[string][]byte)}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// ListQueues returns sorted queue names with the given prefix.
func (s *Store) ListQueues(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.queues))
	for name := range s.queues {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// LoadQueue decodes a fresh copy of the stored snapshot.
func (s *Store) LoadQueue(_ context.Context, name string) (*queue.State, error) {
	s.mu.RLock()
	data, ok := s.queues[name]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrQueueNotFound
	}

	var st queue.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode queue %q: %w", name, err)
	}
	return &st, nil
}

// SaveQueue stores an encoded snapshot.
func (s *Store) SaveQueue(_ context.Context, name string, state *queue.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode queue %q: %w", name, err)
	}

	s.mu.Lock()
	s.queues[name] = data
	s.mu.Unlock()
	return nil
}

// DeleteQueue drops a stored snapshot.
func (s *Store) DeleteQueue(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queues[name]; !ok {
		return storage.ErrQueueNotFound
	}
	delete(s.queues, name)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
