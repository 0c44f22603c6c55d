package broker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/quernio/quern/internal/events"
	"github.com/quernio/quern/internal/queue"
	"github.com/quernio/quern/internal/storage"
	"github.com/quernio/quern/pkg/id"
	"github.com/quernio/quern/pkg/log"
)

// Queue names are limited to letters, digits, underscores, and hyphens so
// they stay safe as storage key segments and snapshot file names.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,80}$`)

// maxReceiveBatch caps a single receive call.
const maxReceiveBatch = 100

// System is the broker: a registry of named queues over one storage
// adapter, plus an event bus and a maintenance scheduler. All methods are
// safe for concurrent use.
type System struct {
	logger      log.Logger
	store       storage.Adapter
	bus         *events.Bus
	now         func() time.Time
	defaults    queue.Options
	gen         *id.Generator
	eventBuffer int

	mu     sync.RWMutex
	queues map[string]queue.Queue
	closed bool

	maint *maintenance
}

// Option tunes a System at construction time.
type Option func(*System)

// WithLogger replaces the default logger.
func WithLogger(l log.Logger) Option {
	return func(s *System) { s.logger = l }
}

// WithDefaults replaces the options applied to queues created without
// explicit settings.
func WithDefaults(opts queue.Options) Option {
	return func(s *System) { s.defaults = opts }
}

// WithMaintenanceInterval sets the period of the background sweep loop.
func WithMaintenanceInterval(d time.Duration) Option {
	return func(s *System) {
		if d > 0 {
			s.maint.interval = d
		}
	}
}

// WithAutoMaintenance starts the background sweep loop as part of New.
func WithAutoMaintenance(enabled bool) Option {
	return func(s *System) { s.maint.auto = enabled }
}

// WithNowFunc replaces the clock, for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(s *System) { s.now = now }
}

// WithEventBuffer sets the per-subscription event buffer size.
func WithEventBuffer(n int) Option {
	return func(s *System) { s.eventBuffer = n }
}

// New opens a broker over the given storage adapter: it verifies the
// backend, reloads every persisted queue, and optionally starts the
// maintenance loop. The adapter stays owned by the caller; Close does not
// close it.
func New(ctx context.Context, store storage.Adapter, opts ...Option) (*System, error) {
	s := &System{
		store:    store,
		now:      time.Now,
		defaults: queue.DefaultOptions(),
		gen:      id.NewGenerator(),
		queues:   make(map[string]queue.Queue),
		maint:    newMaintenance(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	s.logger = s.logger.WithComponent("broker")
	s.bus = events.NewBus(s.eventBuffer)

	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("storage ping: %w", err)
	}
	names, err := store.ListQueues(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	for _, name := range names {
		st, err := store.LoadQueue(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load queue %q: %w", name, err)
		}
		q, err := queue.FromState(name, st, s.deps())
		if err != nil {
			return nil, err
		}
		s.queues[name] = q
	}
	if len(names) > 0 {
		s.logger.Info("queues restored", log.Int("count", len(names)))
	}
	if s.maint.auto {
		s.StartMaintenance()
	}
	return s, nil
}

func (s *System) deps() queue.Deps {
	return queue.Deps{Store: s.store, Gen: s.gen, Now: s.now}
}

// Close stops the maintenance loop and the event bus. Queue snapshots are
// already durable, so nothing is flushed here.
func (s *System) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.StopMaintenance()
	s.bus.Close()
	s.logger.Info("broker closed")
	return nil
}

// Subscribe returns a live event feed. Slow subscribers drop events rather
// than block broker operations.
func (s *System) Subscribe() *events.Subscription {
	return s.bus.Subscribe()
}

func (s *System) lookup(name string) (queue.Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	q, ok := s.queues[name]
	if !ok {
		return nil, &QueueNotFoundError{Queue: name}
	}
	return q, nil
}

// ============================================================================
// Queue Management
// ============================================================================

// CreateQueue registers a new queue and persists its definition. A nil opts
// applies the broker defaults. A dead-letter target named in the options
// must already exist.
func (s *System) CreateQueue(ctx context.Context, name string, qtype queue.Type, opts *queue.Options) error {
	if !nameRE.MatchString(name) {
		return &QueueValidationError{Queue: name, Reason: "name must be 1-80 letters, digits, underscores, or hyphens"}
	}
	if !qtype.Valid() {
		return &QueueValidationError{Queue: name, Reason: fmt.Sprintf("unknown queue type %q", qtype)}
	}
	effective := s.defaults
	if opts != nil {
		effective = *opts
	}
	if err := validateOptions(name, effective); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, exists := s.queues[name]; exists {
		return &QueueValidationError{Queue: name, Reason: "queue already exists"}
	}
	if target := effective.DeadLetterQueue; target != "" {
		if target == name {
			return &QueueValidationError{Queue: name, Reason: "queue cannot be its own dead-letter queue"}
		}
		if _, ok := s.queues[target]; !ok {
			return &QueueValidationError{Queue: name, Reason: fmt.Sprintf("dead-letter queue %q does not exist", target)}
		}
	}

	q, err := queue.New(name, qtype, effective, s.deps())
	if err != nil {
		return &QueueValidationError{Queue: name, Reason: err.Error()}
	}
	if err := q.Flush(ctx); err != nil {
		return &QueueError{Queue: name, Op: "create", Err: err}
	}
	s.queues[name] = q
	s.logger.Info("queue created", log.Str("queue", name), log.Str("type", string(qtype)))
	return nil
}

// DeleteQueue removes a queue and all its messages from the registry and
// from storage. Queues naming it as their dead-letter target keep the
// dangling reference; routing falls back to in-place dead-lettering until
// the link is cleared.
func (s *System) DeleteQueue(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	q, ok := s.queues[name]
	if !ok {
		return &QueueNotFoundError{Queue: name}
	}
	if err := s.store.DeleteQueue(ctx, name); err != nil && !errors.Is(err, storage.ErrQueueNotFound) {
		return &QueueError{Queue: name, Op: "delete", Err: err}
	}
	delete(s.queues, name)
	q.Close()
	s.logger.Info("queue deleted", log.Str("queue", name))
	return nil
}

// ListQueues returns queue names matching the prefix in lexical order, as
// recorded by the storage adapter.
func (s *System) ListQueues(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	names, err := s.store.ListQueues(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	return names, nil
}

// QueueInfo describes one queue: its type, options, and live counts.
type QueueInfo struct {
	Name    string        `json:"name"`
	Type    queue.Type    `json:"type"`
	Options queue.Options `json:"options"`
	Stats   queue.Stats   `json:"stats"`
}

// GetQueueAttributes returns the queue's definition and current counts.
func (s *System) GetQueueAttributes(ctx context.Context, queueName string) (QueueInfo, error) {
	q, err := s.lookup(queueName)
	if err != nil {
		return QueueInfo{}, err
	}
	return QueueInfo{Name: q.Name(), Type: q.Type(), Options: q.Options(), Stats: q.Stats()}, nil
}

// AttributeUpdate carries a partial options change; nil fields keep their
// current values. The dead-letter target changes through
// SetDeadLetterQueue.
type AttributeUpdate struct {
	VisibilityTimeoutSeconds *int
	MaxReceiveCount          *int
	MessageRetentionSeconds  *int
}

// SetQueueAttributes applies an options change and persists it. In-flight
// messages keep the visibility deadline they were leased with.
func (s *System) SetQueueAttributes(ctx context.Context, queueName string, upd AttributeUpdate) error {
	q, err := s.lookup(queueName)
	if err != nil {
		return err
	}
	opts := q.Options()
	if upd.VisibilityTimeoutSeconds != nil {
		opts.VisibilityTimeoutSeconds = *upd.VisibilityTimeoutSeconds
	}
	if upd.MaxReceiveCount != nil {
		opts.MaxReceiveCount = *upd.MaxReceiveCount
	}
	if upd.MessageRetentionSeconds != nil {
		opts.MessageRetentionSeconds = *upd.MessageRetentionSeconds
	}
	if err := validateOptions(queueName, opts); err != nil {
		return err
	}
	if err := q.SetOptions(ctx, opts); err != nil {
		return mapQueueError(queueName, "set attributes", err)
	}
	s.bus.Publish(events.QueueAttributesUpdated(queueName, opts))
	s.logger.Info("queue attributes updated", log.Str("queue", queueName))
	return nil
}

// SetDeadLetterQueue links or clears a queue's dead-letter target. An empty
// target clears the link. Messages already dead-lettered in place move on
// the next sweep.
func (s *System) SetDeadLetterQueue(ctx context.Context, queueName, target string) error {
	q, err := s.lookup(queueName)
	if err != nil {
		return err
	}
	if target != "" {
		if target == queueName {
			return &QueueValidationError{Queue: queueName, Reason: "queue cannot be its own dead-letter queue"}
		}
		if _, err := s.lookup(target); err != nil {
			return err
		}
	}
	opts := q.Options()
	opts.DeadLetterQueue = target
	if err := q.SetOptions(ctx, opts); err != nil {
		return mapQueueError(queueName, "set dead-letter queue", err)
	}
	s.bus.Publish(events.QueueAttributesUpdated(queueName, opts))
	if target == "" {
		s.logger.Info("dead-letter queue cleared", log.Str("queue", queueName))
	} else {
		s.logger.Info("dead-letter queue set", log.Str("queue", queueName), log.Str("deadLetterQueue", target))
	}
	return nil
}

func validateOptions(name string, opts queue.Options) error {
	if opts.VisibilityTimeoutSeconds <= 0 {
		return &QueueValidationError{Queue: name, Reason: "visibility timeout must be positive"}
	}
	if opts.MaxReceiveCount < 0 {
		return &QueueValidationError{Queue: name, Reason: "max receive count must not be negative"}
	}
	if opts.MessageRetentionSeconds < 0 {
		return &QueueValidationError{Queue: name, Reason: "message retention must not be negative"}
	}
	return nil
}

// ============================================================================
// Message Operations
// ============================================================================

// SendMessage enqueues one message and returns its assigned id.
func (s *System) SendMessage(ctx context.Context, queueName string, req queue.EnqueueRequest) (string, error) {
	ids, err := s.SendMessageBatch(ctx, queueName, []queue.EnqueueRequest{req})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// SendMessageBatch enqueues messages in request order with one persistence
// write: either every message lands or none does. A non-zero delay is valid
// only on delayed queues.
func (s *System) SendMessageBatch(ctx context.Context, queueName string, reqs []queue.EnqueueRequest) ([]string, error) {
	q, err := s.lookup(queueName)
	if err != nil {
		return nil, err
	}
	for _, req := range reqs {
		if req.Delay < 0 {
			return nil, &QueueValidationError{Queue: queueName, Reason: "delay must not be negative"}
		}
		if req.Delay > 0 && q.Type() != queue.TypeDelayed {
			return nil, &QueueValidationError{Queue: queueName, Reason: fmt.Sprintf("delay requires a delayed queue, not %s", q.Type())}
		}
	}
	msgs, err := q.Enqueue(ctx, reqs)
	if err != nil {
		return nil, mapQueueError(queueName, "send", err)
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		s.bus.Publish(events.MessageSent(queueName, m.ID))
	}
	s.logger.Debug("messages sent", log.Str("queue", queueName), log.Int("count", len(ids)))
	return ids, nil
}

// ReceiveMessages leases up to max eligible messages; each becomes
// invisible until acknowledged or its visibility window lapses. max <= 0
// receives one; batches cap at 100. An empty queue returns immediately with
// no messages.
func (s *System) ReceiveMessages(ctx context.Context, queueName string, max int) ([]*queue.Message, error) {
	q, err := s.lookup(queueName)
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 1
	}
	if max > maxReceiveBatch {
		max = maxReceiveBatch
	}
	msgs, err := q.Dequeue(ctx, max)
	if err != nil {
		return nil, mapQueueError(queueName, "receive", err)
	}
	if len(msgs) > 0 {
		ids := make([]string, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		s.bus.Publish(events.MessagesReceived(queueName, ids))
	}
	return msgs, nil
}

// AcknowledgeMessage permanently removes an in-flight message. A lease that
// already lapsed reports the message as not found.
func (s *System) AcknowledgeMessage(ctx context.Context, queueName, messageID string) error {
	q, err := s.lookup(queueName)
	if err != nil {
		return err
	}
	if err := q.Ack(ctx, messageID); err != nil {
		return mapMessageError(queueName, messageID, "acknowledge", err)
	}
	s.bus.Publish(events.MessageAcknowledged(queueName, messageID))
	return nil
}

// DeadLetterMessage gives up on an in-flight message: it is marked
// dead-lettered with the reason stamped into its attributes, then moved
// into the queue's dead-letter target when one is configured.
func (s *System) DeadLetterMessage(ctx context.Context, queueName, messageID, reason string) error {
	q, err := s.lookup(queueName)
	if err != nil {
		return err
	}
	if _, err := q.DeadLetter(ctx, messageID, reason); err != nil {
		return mapMessageError(queueName, messageID, "dead-letter", err)
	}
	s.bus.Publish(events.MessageFailed(queueName, messageID, reason))
	s.bus.Publish(events.MessageDeadLettered(queueName, messageID, reason))
	s.routeDeadLetters(ctx, q)
	return nil
}

// ChangeMessageVisibility restarts an in-flight message's visibility window
// so a slow consumer can keep its lease.
func (s *System) ChangeMessageVisibility(ctx context.Context, queueName, messageID string, extension time.Duration) error {
	if extension <= 0 {
		return &QueueValidationError{Queue: queueName, Reason: "visibility extension must be positive"}
	}
	q, err := s.lookup(queueName)
	if err != nil {
		return err
	}
	if err := q.ExtendVisibility(ctx, messageID, extension); err != nil {
		return mapMessageError(queueName, messageID, "change visibility", err)
	}
	return nil
}

// ChangeMessageDelay reschedules a not-yet-delivered message on a delayed
// queue. A zero delay releases it immediately.
func (s *System) ChangeMessageDelay(ctx context.Context, queueName, messageID string, delay time.Duration) error {
	if delay < 0 {
		return &QueueValidationError{Queue: queueName, Reason: "delay must not be negative"}
	}
	q, err := s.lookup(queueName)
	if err != nil {
		return err
	}
	if err := q.ChangeDelay(ctx, messageID, delay); err != nil {
		return mapMessageError(queueName, messageID, "change delay", err)
	}
	s.bus.Publish(events.MessageDelayChanged(queueName, messageID, delay))
	return nil
}

// PeekMessages returns copies of messages in enqueue order without leasing
// them, optionally filtered by a CEL expression. max <= 0 returns every
// match.
func (s *System) PeekMessages(ctx context.Context, queueName string, max int, filter string) ([]*queue.Message, error) {
	q, err := s.lookup(queueName)
	if err != nil {
		return nil, err
	}
	f, err := newMessageFilter(filter)
	if err != nil {
		return nil, &QueueValidationError{Queue: queueName, Reason: fmt.Sprintf("filter: %v", err)}
	}
	all := q.Peek(0)
	out := make([]*queue.Message, 0, len(all))
	for _, m := range all {
		if !f.Match(m) {
			continue
		}
		out = append(out, m)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, nil
}

// RedriveMessages returns dead-lettered messages to available delivery with
// a reset receive count. max <= 0 redrives all. Returns the number moved.
func (s *System) RedriveMessages(ctx context.Context, queueName string, max int) (int, error) {
	q, err := s.lookup(queueName)
	if err != nil {
		return 0, err
	}
	ids, err := q.Redrive(ctx, max)
	if err != nil {
		return 0, mapQueueError(queueName, "redrive", err)
	}
	for _, msgID := range ids {
		s.bus.Publish(events.MessageRequeued(queueName, msgID))
	}
	if len(ids) > 0 {
		s.logger.Info("messages redriven", log.Str("queue", queueName), log.Int("count", len(ids)))
	}
	return len(ids), nil
}

// PurgeQueue drops every message in the queue and returns the count.
func (s *System) PurgeQueue(ctx context.Context, queueName string) (int, error) {
	q, err := s.lookup(queueName)
	if err != nil {
		return 0, err
	}
	n, err := q.Purge(ctx)
	if err != nil {
		return 0, mapQueueError(queueName, "purge", err)
	}
	s.bus.Publish(events.QueuePurged(queueName, n))
	s.logger.Info("queue purged", log.Str("queue", queueName), log.Int("count", n))
	return n, nil
}

// ============================================================================
// Dead-Letter Routing
// ============================================================================

// routeDeadLetters moves in-place dead-lettered messages into the queue's
// dead-letter target. The copy is adopted by the target before the original
// is removed, so a crash between the two steps duplicates the message
// rather than losing it; a duplicate adopt on retry just completes the
// pending removal. A missing target leaves messages dead-lettered in place.
func (s *System) routeDeadLetters(ctx context.Context, src queue.Queue) []string {
	target := src.Options().DeadLetterQueue
	if target == "" {
		return nil
	}
	dead := src.DeadLetters()
	if len(dead) == 0 {
		return nil
	}
	dlq, err := s.lookup(target)
	if err != nil {
		s.logger.Warn("dead-letter queue missing, messages stay in place",
			log.Str("queue", src.Name()), log.Str("deadLetterQueue", target), log.Int("count", len(dead)))
		for _, m := range dead {
			s.bus.Publish(events.MessageFailed(src.Name(), m.ID, fmt.Sprintf("dead-letter queue %q missing", target)))
		}
		return nil
	}

	now := s.now().UnixMilli()
	moved := make([]string, 0, len(dead))
	for _, m := range dead {
		m.Status = queue.StatusAvailable
		m.ReceiveCount = 0
		m.VisibilityDeadline = 0
		m.EnqueuedAt = now
		m.AvailableAt = now

		err := dlq.Adopt(ctx, m)
		switch {
		case err == nil:
			s.bus.Publish(events.MessageSent(target, m.ID))
		case errors.Is(err, queue.ErrDuplicateID):
			// adopted by an earlier attempt; finish the removal
		default:
			s.logger.Warn("dead-letter move failed",
				log.Str("queue", src.Name()), log.Str("deadLetterQueue", target),
				log.Str("message", m.ID), log.Err(err))
			s.bus.Publish(events.MessageFailed(src.Name(), m.ID, fmt.Sprintf("dead-letter move: %v", err)))
			continue
		}
		if err := src.Remove(ctx, m.ID); err != nil && !errors.Is(err, queue.ErrMessageNotFound) {
			s.logger.Warn("dead-letter source removal failed",
				log.Str("queue", src.Name()), log.Str("message", m.ID), log.Err(err))
			continue
		}
		moved = append(moved, m.ID)
	}
	return moved
}

// ============================================================================
// Stats
// ============================================================================

// SystemStats aggregates live counts across every queue.
type SystemStats struct {
	Queues      int                    `json:"queues"`
	Totals      queue.Stats            `json:"totals"`
	PerQueue    map[string]queue.Stats `json:"perQueue"`
	Maintenance MaintenanceStatus      `json:"maintenance"`
}

// GetSystemStats reports counts for every queue plus maintenance scheduler
// state.
func (s *System) GetSystemStats(ctx context.Context) (SystemStats, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return SystemStats{}, ErrClosed
	}
	qs := make(map[string]queue.Queue, len(s.queues))
	for name, q := range s.queues {
		qs[name] = q
	}
	s.mu.RUnlock()

	stats := SystemStats{
		Queues:   len(qs),
		PerQueue: make(map[string]queue.Stats, len(qs)),
	}
	for name, q := range qs {
		st := q.Stats()
		stats.PerQueue[name] = st
		stats.Totals.Available += st.Available
		stats.Totals.InFlight += st.InFlight
		stats.Totals.Delayed += st.Delayed
		stats.Totals.DeadLettered += st.DeadLettered
	}
	stats.Maintenance = s.maintenanceStatus()
	return stats, nil
}
