// Package sqlitestore persists queue snapshots in a single SQLite database
// file: one row per queue plus one row per message. Saves run in a
// transaction so a snapshot is applied atomically.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quernio/quern/internal/queue"
	"github.com/quernio/quern/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS queues (
	name          TEXT PRIMARY KEY,
	type          TEXT    NOT NULL,
	options       TEXT    NOT NULL,
	last_sequence INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	queue_name TEXT    NOT NULL,
	seq        INTEGER NOT NULL,
	data       BLOB    NOT NULL,
	PRIMARY KEY (queue_name, seq)
);`

// Store implements storage.Adapter on SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database file and ensures the schema exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlitestore: path is required")
	}
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListQueues returns sorted queue names with the given prefix. Prefix
// filtering happens in Go to sidestep LIKE wildcard escaping.
func (s *Store) ListQueues(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM queues`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// LoadQueue reads the queue row and its messages ordered by sequence.
func (s *Store) LoadQueue(ctx context.Context, name string) (*queue.State, error) {
	var (
		qtype   string
		optsRaw string
		lastSeq uint64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT type, options, last_sequence FROM queues WHERE name = ?`, name).
		Scan(&qtype, &optsRaw, &lastSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrQueueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read queue %q: %w", name, err)
	}

	st := &queue.State{Type: queue.Type(qtype), LastSequence: lastSeq}
	if err := json.Unmarshal([]byte(optsRaw), &st.Options); err != nil {
		return nil, fmt.Errorf("decode queue %q options: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM messages WHERE queue_name = ? ORDER BY seq`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m queue.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode queue %q message: %w", name, err)
		}
		st.Messages = append(st.Messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return st, nil
}

// SaveQueue replaces the queue row and its message rows in one transaction.
func (s *Store) SaveQueue(ctx context.Context, name string, state *queue.State) error {
	optsRaw, err := json.Marshal(state.Options)
	if err != nil {
		return fmt.Errorf("encode queue %q options: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO queues (name, type, options, last_sequence) VALUES (?, ?, ?, ?)`,
		name, string(state.Type), string(optsRaw), state.LastSequence); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE queue_name = ?`, name); err != nil {
		return err
	}
	for _, m := range state.Messages {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode queue %q message %s: %w", name, m.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (queue_name, seq, data) VALUES (?, ?, ?)`,
			name, m.EnqueueSequence, data); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteQueue removes the queue row and its messages.
func (s *Store) DeleteQueue(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM queues WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrQueueNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE queue_name = ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
