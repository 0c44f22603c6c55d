package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quernio/quern/pkg/id"
)

// Sentinel errors returned by queue operations. The broker layer maps them
// onto its public error taxonomy.
var (
	// ErrMessageNotFound covers ids that are unknown, already acknowledged,
	// or whose lease was reclaimed.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotAvailable rejects delay changes on in-flight or dead-lettered
	// messages.
	ErrNotAvailable = errors.New("message not available")
	// ErrDelayUnsupported rejects delay changes on fifo and priority queues.
	ErrDelayUnsupported = errors.New("delay not supported by queue type")
	// ErrDuplicateID rejects adopting a message whose id is already present.
	// The broker treats it as an already-completed move half.
	ErrDuplicateID = errors.New("duplicate message id")
	// ErrClosed rejects operations on deleted queues.
	ErrClosed = errors.New("queue closed")
)

// Store persists queue snapshots. The state passed to SaveQueue is owned by
// the caller; implementations must serialize or copy before returning.
type Store interface {
	SaveQueue(ctx context.Context, name string, state *State) error
}

// Queue is the capability set shared by all queue variants. Every mutating
// operation persists the full snapshot through the configured Store before
// reporting success.
type Queue interface {
	Name() string
	Type() Type
	Options() Options

	// Enqueue appends messages in request order and returns their stored
	// forms. The batch persists in a single write.
	Enqueue(ctx context.Context, reqs []EnqueueRequest) ([]*Message, error)

	// Dequeue leases up to max eligible messages: each becomes in-flight
	// with a fresh visibility deadline. An empty queue returns immediately
	// with no messages and no error.
	Dequeue(ctx context.Context, max int) ([]*Message, error)

	// Ack permanently removes an in-flight message.
	Ack(ctx context.Context, id string) error

	// DeadLetter marks an in-flight message dead-lettered in place and
	// stamps the reason into its attributes. Routing into a configured
	// dead-letter queue is the broker's second step.
	DeadLetter(ctx context.Context, id, reason string) (*Message, error)

	// DeadLetters returns clones of every in-place dead-lettered message,
	// ordered by enqueue sequence.
	DeadLetters() []*Message

	// Remove deletes a message in any status, completing a dead-letter move
	// after the target queue adopted the copy.
	Remove(ctx context.Context, id string) error

	// ExtendVisibility restarts an in-flight message's visibility window.
	ExtendVisibility(ctx context.Context, id string, extra time.Duration) error

	// ChangeDelay reschedules an available message on a delayed queue.
	ChangeDelay(ctx context.Context, id string, delay time.Duration) error

	// Adopt inserts a message that originated elsewhere (dead-letter
	// routing), preserving its id, body, and attributes while assigning a
	// fresh sequence.
	Adopt(ctx context.Context, m *Message) error

	// Redrive returns up to max in-place dead-lettered messages to
	// available with a reset receive count. max <= 0 redrives all.
	Redrive(ctx context.Context, max int) ([]string, error)

	// Peek returns clones of up to max messages ordered by enqueue
	// sequence, without leasing. max <= 0 returns all.
	Peek(max int) []*Message

	// Purge drops every message regardless of status.
	Purge(ctx context.Context) (int, error)

	// Maintenance runs one sweep: promote due delayed messages, reclaim
	// expired leases, collect dead-letter threshold breaches, and apply
	// retention.
	Maintenance(ctx context.Context) (MaintenanceResult, error)

	// SetOptions replaces the queue's options. Existing leases keep their
	// deadlines.
	SetOptions(ctx context.Context, opts Options) error

	// Flush persists the current snapshot unconditionally.
	Flush(ctx context.Context) error

	Stats() Stats

	// Close marks the queue deleted; subsequent operations fail with
	// ErrClosed.
	Close()
}

// Deps carries the collaborators a queue needs. Zero values fall back to a
// fresh id generator and the wall clock; Store must be set.
type Deps struct {
	Store Store
	Gen   *id.Generator
	Now   func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Gen == nil {
		d.Gen = id.NewGenerator()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// New constructs an empty queue of the given type.
func New(name string, qtype Type, opts Options, deps Deps) (Queue, error) {
	switch qtype {
	case TypeFifo:
		return NewFifo(name, opts, deps), nil
	case TypePriority:
		return NewPriority(name, opts, deps), nil
	case TypeDelayed:
		return NewDelayed(name, opts, deps), nil
	default:
		return nil, fmt.Errorf("unknown queue type %q", qtype)
	}
}

// FromState rebuilds a queue from a persisted snapshot. Ordering is derived
// from message fields, never from snapshot order.
func FromState(name string, st *State, deps Deps) (Queue, error) {
	q, err := New(name, st.Type, st.Options, deps)
	if err != nil {
		return nil, err
	}
	var c *core
	switch v := q.(type) {
	case *FifoQueue:
		c = v.core
	case *PriorityQueue:
		c = v.core
	case *DelayedQueue:
		c = v.core
	}
	if err := c.restore(st); err != nil {
		return nil, fmt.Errorf("restore queue %q: %w", name, err)
	}
	return q, nil
}
