package storage

import (
	"context"
	"errors"

	"github.com/quernio/quern/internal/queue"
)

// ErrQueueNotFound is returned when a load or delete names a queue that has
// no persisted state.
var ErrQueueNotFound = errors.New("queue not found in storage")

// Adapter persists full queue snapshots keyed by queue name. The state
// passed to SaveQueue is owned by the caller; implementations serialize or
// copy before returning. LoadQueue returns state the caller may mutate
// freely.
type Adapter interface {
	// Ping verifies the backend is reachable and writable.
	Ping(ctx context.Context) error

	// ListQueues returns the names of persisted queues, sorted, optionally
	// filtered by name prefix.
	ListQueues(ctx context.Context, prefix string) ([]string, error)

	// LoadQueue reads one queue's snapshot. Returns ErrQueueNotFound when
	// the queue has never been saved.
	LoadQueue(ctx context.Context, name string) (*queue.State, error)

	// SaveQueue atomically replaces one queue's snapshot.
	SaveQueue(ctx context.Context, name string, state *queue.State) error

	// DeleteQueue removes one queue's snapshot. Returns ErrQueueNotFound
	// when nothing was persisted under the name.
	DeleteQueue(ctx context.Context, name string) error

	// Close releases backend resources.
	Close() error
}
