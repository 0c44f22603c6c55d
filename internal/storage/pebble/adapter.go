package pebblestore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/pebble"

	"github.com/quernio/quern/internal/queue"
	"github.com/quernio/quern/internal/storage"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - q/{name}/meta                (queue type, options, lastSequence)
// - q/{name}/msg/{seq_be8}       (one message per key, ordered by sequence)
//
// Queue names never contain '/', so prefix scans cannot cross queues.

var (
	queuePrefix = []byte("q/")
	metaSuffix  = []byte("/meta")
	msgSeg      = []byte("/msg/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyQueueMeta builds the queue metadata key.
func keyQueueMeta(name string) []byte {
	k := make([]byte, 0, len(name)+8)
	k = append(k, queuePrefix...)
	k = append(k, name...)
	k = append(k, metaSuffix...)
	return k
}

// keyQueueMsg builds a message key with a big-endian sequence for proper
// ordering.
func keyQueueMsg(name string, seq uint64) []byte {
	k := make([]byte, 0, len(name)+16)
	k = append(k, queuePrefix...)
	k = append(k, name...)
	k = append(k, msgSeg...)
	k = appendBE8(k, seq)
	return k
}

// keyQueueSpan returns the key range [start, end) covering every key of one
// queue.
func keyQueueSpan(name string) (start, end []byte) {
	start = make([]byte, 0, len(name)+4)
	start = append(start, queuePrefix...)
	start = append(start, name...)
	start = append(start, '/')
	return start, prefixEnd(start)
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// queueMeta is the persisted form of everything but the messages.
type queueMeta struct {
	Type         queue.Type    `json:"type"`
	Options      queue.Options `json:"options"`
	LastSequence uint64        `json:"lastSequence"`
}

// Store implements storage.Adapter on a Pebble database.
type Store struct {
	db *DB
}

// NewStore wraps an open database. Closing the store closes the database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Ping verifies the database answers point reads.
func (s *Store) Ping(context.Context) error {
	_, err := s.db.Get(keyQueueMeta("\x00ping"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("pebble not readable: %w", err)
	}
	return nil
}

// ListQueues scans metadata keys.
func (s *Store) ListQueues(_ context.Context, prefix string) ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: queuePrefix,
		UpperBound: prefixEnd(queuePrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var names []string
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if !strings.HasSuffix(string(key), string(metaSuffix)) {
			continue
		}
		name := string(key[len(queuePrefix) : len(key)-len(metaSuffix)])
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	// Key order interleaves '/' with name bytes, so re-sort by plain name.
	sort.Strings(names)
	return names, nil
}

// LoadQueue reads the metadata key and every message key of one queue.
func (s *Store) LoadQueue(_ context.Context, name string) (*queue.State, error) {
	metaRaw, err := s.db.Get(keyQueueMeta(name))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, storage.ErrQueueNotFound
		}
		return nil, fmt.Errorf("read queue %q meta: %w", name, err)
	}
	var meta queueMeta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, fmt.Errorf("decode queue %q meta: %w", name, err)
	}

	msgStart := keyQueueMsg(name, 0)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: msgStart,
		UpperBound: prefixEnd(msgStart[:len(msgStart)-8]),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	st := &queue.State{
		Type:         meta.Type,
		Options:      meta.Options,
		LastSequence: meta.LastSequence,
	}
	for iter.First(); iter.Valid(); iter.Next() {
		var m queue.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("decode queue %q message: %w", name, err)
		}
		st.Messages = append(st.Messages, &m)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return st, nil
}

// SaveQueue replaces the queue's span in one atomic batch: range-delete the
// old keys, then write fresh metadata and messages.
func (s *Store) SaveQueue(ctx context.Context, name string, state *queue.State) error {
	metaRaw, err := json.Marshal(queueMeta{
		Type:         state.Type,
		Options:      state.Options,
		LastSequence: state.LastSequence,
	})
	if err != nil {
		return fmt.Errorf("encode queue %q meta: %w", name, err)
	}

	b := s.db.NewBatch()
	defer b.Close()

	start, end := keyQueueSpan(name)
	if err := b.DeleteRange(start, end, nil); err != nil {
		return err
	}
	if err := b.Set(keyQueueMeta(name), metaRaw, nil); err != nil {
		return err
	}
	for _, m := range state.Messages {
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode queue %q message %s: %w", name, m.ID, err)
		}
		if err := b.Set(keyQueueMsg(name, m.EnqueueSequence), raw, nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}

// DeleteQueue range-deletes the queue's span.
func (s *Store) DeleteQueue(ctx context.Context, name string) error {
	if _, err := s.db.Get(keyQueueMeta(name)); err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return storage.ErrQueueNotFound
		}
		return fmt.Errorf("read queue %q meta: %w", name, err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	start, end := keyQueueSpan(name)
	if err := b.DeleteRange(start, end, nil); err != nil {
		return err
	}
	return s.db.CommitBatch(ctx, b)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
