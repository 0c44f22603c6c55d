package queue

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/quernio/quern/pkg/id"
)

// core carries the state and behavior shared by every queue variant. The
// variants differ only in their ready-heap comparator and whether message
// delays are mutable. All fields behind mu; one mutex guards both the
// in-memory structures and the persistence round, so snapshot writes for a
// queue are serialized.
type core struct {
	name      string
	qtype     Type
	delayable bool

	mu      sync.Mutex
	opts    Options
	byID    map[string]*Message
	ready   *msgHeap // available and due, ordered by the variant comparator
	pending *msgHeap // available with availableAt in the future
	lastSeq uint64
	closed  bool

	store Store
	gen   *id.Generator
	now   func() time.Time
}

func newCore(name string, qtype Type, opts Options, less lessFunc, delayable bool, deps Deps) *core {
	deps = deps.withDefaults()
	return &core{
		name:      name,
		qtype:     qtype,
		delayable: delayable,
		opts:      opts,
		byID:      make(map[string]*Message),
		ready:     newMsgHeap(locReady, less),
		pending:   newMsgHeap(locPending, byAvailableAt),
		store:     deps.Store,
		gen:       deps.Gen,
		now:       deps.Now,
	}
}

// Name returns the queue name.
func (c *core) Name() string { return c.name }

// Type returns the queue's ordering discipline.
func (c *core) Type() Type { return c.qtype }

// Options returns a copy of the current options.
func (c *core) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// Close marks the queue deleted.
func (c *core) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *core) nowMs() int64 { return c.now().UnixMilli() }

// ============================================================================
// Core Operations
// ============================================================================

// Enqueue appends messages in request order and persists once for the batch.
func (c *core) Enqueue(ctx context.Context, reqs []EnqueueRequest) ([]*Message, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	now := c.nowMs()
	prevSeq := c.lastSeq
	created := make([]*Message, 0, len(reqs))
	for _, req := range reqs {
		delay := req.Delay
		if !c.delayable {
			delay = 0
		}
		c.lastSeq++
		m := &Message{
			ID:              c.gen.Next().String(),
			Body:            append([]byte(nil), req.Body...),
			Attributes:      copyAttrs(req.Attributes),
			QueueName:       c.name,
			EnqueueSequence: c.lastSeq,
			Priority:        req.Priority,
			EnqueuedAt:      now,
			AvailableAt:     now + delay.Milliseconds(),
			Status:          StatusAvailable,
		}
		c.byID[m.ID] = m
		c.placeAvailableLocked(m, now)
		created = append(created, m)
	}

	if err := c.persistLocked(ctx); err != nil {
		for _, m := range created {
			c.dropLocked(m)
		}
		c.lastSeq = prevSeq
		return nil, err
	}

	out := make([]*Message, len(created))
	for i, m := range created {
		out[i] = m.Clone()
	}
	return out, nil
}

// Dequeue leases up to max eligible messages. Due delayed messages are
// promoted first so they never wait for the next sweep.
func (c *core) Dequeue(ctx context.Context, max int) ([]*Message, error) {
	if max <= 0 {
		max = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	now := c.nowMs()
	c.promoteDueLocked(now)

	taken := make([]*Message, 0, max)
	for len(taken) < max {
		m := c.ready.pop()
		if m == nil {
			break
		}
		m.Status = StatusInFlight
		m.VisibilityDeadline = now + c.opts.visibilityTimeoutMs()
		taken = append(taken, m)
	}
	if len(taken) == 0 {
		return nil, nil
	}

	if err := c.persistLocked(ctx); err != nil {
		for _, m := range taken {
			m.Status = StatusAvailable
			m.VisibilityDeadline = 0
			c.ready.push(m)
		}
		return nil, err
	}

	out := make([]*Message, len(taken))
	for i, m := range taken {
		out[i] = m.Clone()
	}
	return out, nil
}

// Ack permanently removes an in-flight message.
func (c *core) Ack(ctx context.Context, msgID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	m, ok := c.byID[msgID]
	if !ok || m.Status != StatusInFlight {
		return ErrMessageNotFound
	}
	delete(c.byID, msgID)

	if err := c.persistLocked(ctx); err != nil {
		c.byID[msgID] = m
		return err
	}
	return nil
}

// DeadLetter marks an in-flight message dead-lettered in place.
func (c *core) DeadLetter(ctx context.Context, msgID, reason string) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	m, ok := c.byID[msgID]
	if !ok || m.Status != StatusInFlight {
		return nil, ErrMessageNotFound
	}

	prevAttrs := m.Attributes
	prevDeadline := m.VisibilityDeadline
	m.Status = StatusDeadLettered
	m.VisibilityDeadline = 0
	m.Attributes = withDeadLetterAttrs(m.Attributes, reason, c.name, m.ReceiveCount, c.nowMs())
	if err := c.persistLocked(ctx); err != nil {
		m.Status = StatusInFlight
		m.VisibilityDeadline = prevDeadline
		m.Attributes = prevAttrs
		return nil, err
	}
	return m.Clone(), nil
}

// DeadLetters returns clones of the in-place dead-lettered messages.
func (c *core) DeadLetters() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	dead := c.collectLocked(func(m *Message) bool { return m.Status == StatusDeadLettered })
	out := make([]*Message, len(dead))
	for i, m := range dead {
		out[i] = m.Clone()
	}
	return out
}

// Remove deletes a message in any status.
func (c *core) Remove(ctx context.Context, msgID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	m, ok := c.byID[msgID]
	if !ok {
		return ErrMessageNotFound
	}
	loc := m.heapLoc
	c.dropLocked(m)

	if err := c.persistLocked(ctx); err != nil {
		c.byID[msgID] = m
		if loc != locNone {
			c.placeAvailableLocked(m, c.nowMs())
		}
		return err
	}
	return nil
}

// ExtendVisibility restarts the visibility window from now.
func (c *core) ExtendVisibility(ctx context.Context, msgID string, extra time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	m, ok := c.byID[msgID]
	if !ok || m.Status != StatusInFlight {
		return ErrMessageNotFound
	}

	prev := m.VisibilityDeadline
	m.VisibilityDeadline = c.nowMs() + extra.Milliseconds()
	if err := c.persistLocked(ctx); err != nil {
		m.VisibilityDeadline = prev
		return err
	}
	return nil
}

// ChangeDelay reschedules an available message; delayed queues only.
func (c *core) ChangeDelay(ctx context.Context, msgID string, delay time.Duration) error {
	if !c.delayable {
		return ErrDelayUnsupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	m, ok := c.byID[msgID]
	if !ok {
		return ErrMessageNotFound
	}
	if m.Status != StatusAvailable {
		return ErrNotAvailable
	}

	now := c.nowMs()
	prev := m.AvailableAt
	m.AvailableAt = now + delay.Milliseconds()
	c.replaceAvailableLocked(m, now)

	if err := c.persistLocked(ctx); err != nil {
		m.AvailableAt = prev
		c.replaceAvailableLocked(m, now)
		return err
	}
	return nil
}

// Adopt inserts a routed message with a fresh sequence.
func (c *core) Adopt(ctx context.Context, m *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, exists := c.byID[m.ID]; exists {
		return fmt.Errorf("message %s already present in queue %q: %w", m.ID, c.name, ErrDuplicateID)
	}

	prevSeq := c.lastSeq
	c.lastSeq++
	m.QueueName = c.name
	m.EnqueueSequence = c.lastSeq
	c.byID[m.ID] = m
	if m.Status == StatusAvailable {
		c.placeAvailableLocked(m, c.nowMs())
	}

	if err := c.persistLocked(ctx); err != nil {
		c.dropLocked(m)
		c.lastSeq = prevSeq
		return err
	}
	return nil
}

// Redrive returns in-place dead-lettered messages to available.
func (c *core) Redrive(ctx context.Context, max int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	dead := c.collectLocked(func(m *Message) bool { return m.Status == StatusDeadLettered })
	if max > 0 && len(dead) > max {
		dead = dead[:max]
	}
	if len(dead) == 0 {
		return nil, nil
	}

	now := c.nowMs()
	type undo struct {
		m            *Message
		receiveCount int
		availableAt  int64
	}
	undos := make([]undo, 0, len(dead))
	ids := make([]string, 0, len(dead))
	for _, m := range dead {
		undos = append(undos, undo{m: m, receiveCount: m.ReceiveCount, availableAt: m.AvailableAt})
		m.Status = StatusAvailable
		m.ReceiveCount = 0
		m.AvailableAt = now
		m.VisibilityDeadline = 0
		c.ready.push(m)
		ids = append(ids, m.ID)
	}

	if err := c.persistLocked(ctx); err != nil {
		for _, u := range undos {
			c.ready.remove(u.m)
			u.m.Status = StatusDeadLettered
			u.m.ReceiveCount = u.receiveCount
			u.m.AvailableAt = u.availableAt
		}
		return nil, err
	}
	return ids, nil
}

// Peek returns clones ordered by enqueue sequence without leasing.
func (c *core) Peek(max int) []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.collectLocked(func(*Message) bool { return true })
	if max > 0 && len(msgs) > max {
		msgs = msgs[:max]
	}
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Purge drops every message regardless of status.
func (c *core) Purge(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}

	n := len(c.byID)
	if n == 0 {
		return 0, nil
	}

	prevByID := c.byID
	prevReady := c.ready.items
	prevPending := c.pending.items
	c.byID = make(map[string]*Message)
	c.ready.items = nil
	c.pending.items = nil

	if err := c.persistLocked(ctx); err != nil {
		c.byID = prevByID
		c.ready.items = prevReady
		c.pending.items = prevPending
		return 0, err
	}
	return n, nil
}

// SetOptions replaces the queue's options.
func (c *core) SetOptions(ctx context.Context, opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	prev := c.opts
	c.opts = opts
	if err := c.persistLocked(ctx); err != nil {
		c.opts = prev
		return err
	}
	return nil
}

// Flush persists the current snapshot unconditionally.
func (c *core) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.persistLocked(ctx)
}

// Stats tallies live message counts.
func (c *core) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowMs()
	var st Stats
	for _, m := range c.byID {
		switch m.Status {
		case StatusInFlight:
			st.InFlight++
		case StatusDeadLettered:
			st.DeadLettered++
		default:
			if m.AvailableAt > now {
				st.Delayed++
			} else {
				st.Available++
			}
		}
	}
	return st
}

// ============================================================================
// Maintenance
// ============================================================================

// Maintenance runs one sweep. Order matters: due delayed messages promote
// first, expired leases requeue with their receive count incremented, then
// threshold breaches dead-letter, and retention reaps last so it sees the
// sweep's own transitions. Promotion alone does not change persisted fields,
// so a promote-only sweep skips the snapshot write.
func (c *core) Maintenance(ctx context.Context) (MaintenanceResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res MaintenanceResult
	if c.closed {
		return res, ErrClosed
	}
	now := c.nowMs()

	for _, m := range c.promoteDueLocked(now) {
		res.Promoted = append(res.Promoted, m.ID)
	}

	expired := c.collectLocked(func(m *Message) bool {
		return m.Status == StatusInFlight && m.VisibilityDeadline > 0 && m.VisibilityDeadline <= now
	})
	for _, m := range expired {
		m.Status = StatusAvailable
		m.VisibilityDeadline = 0
		m.ReceiveCount++
		m.AvailableAt = now
		c.ready.push(m)
		res.Requeued = append(res.Requeued, m.ID)
	}

	if c.opts.MaxReceiveCount > 0 {
		breached := c.collectLocked(func(m *Message) bool {
			return m.Status == StatusAvailable && m.ReceiveCount >= c.opts.MaxReceiveCount
		})
		reason := ThresholdReason(c.opts.MaxReceiveCount)
		for _, m := range breached {
			c.removeFromHeapsLocked(m)
			m.Status = StatusDeadLettered
			m.Attributes = withDeadLetterAttrs(m.Attributes, reason, c.name, m.ReceiveCount, now)
			res.DeadLettered = append(res.DeadLettered, m.ID)
		}
	}

	if c.opts.MessageRetentionSeconds > 0 {
		cutoff := now - c.opts.retentionMs()
		reaped := c.collectLocked(func(m *Message) bool { return m.EnqueuedAt <= cutoff })
		for _, m := range reaped {
			c.removeFromHeapsLocked(m)
			delete(c.byID, m.ID)
			res.Expired = append(res.Expired, m.ID)
		}
	}

	if !res.Changed() {
		return res, nil
	}
	// No rollback here: memory stays authoritative and a later write catches
	// up; on crash the older snapshot only causes redelivery.
	if err := c.persistLocked(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// ============================================================================
// Internals
// ============================================================================

// placeAvailableLocked routes an available message into the ready or pending
// heap based on its availableAt.
func (c *core) placeAvailableLocked(m *Message, now int64) {
	if m.AvailableAt > now {
		c.pending.push(m)
		return
	}
	c.ready.push(m)
}

// replaceAvailableLocked re-homes an available message after availableAt
// changed.
func (c *core) replaceAvailableLocked(m *Message, now int64) {
	if m.AvailableAt > now {
		if m.heapLoc == locPending {
			c.pending.fix(m)
			return
		}
		c.ready.remove(m)
		c.pending.push(m)
		return
	}
	if m.heapLoc == locReady {
		c.ready.fix(m)
		return
	}
	c.pending.remove(m)
	c.ready.push(m)
}

func (c *core) removeFromHeapsLocked(m *Message) {
	c.ready.remove(m)
	c.pending.remove(m)
}

// dropLocked removes a message from the map and whichever heap holds it.
func (c *core) dropLocked(m *Message) {
	c.removeFromHeapsLocked(m)
	delete(c.byID, m.ID)
}

// promoteDueLocked moves due pending messages into the ready heap and
// returns them in promotion order.
func (c *core) promoteDueLocked(now int64) []*Message {
	var promoted []*Message
	for {
		m := c.pending.peek()
		if m == nil || m.AvailableAt > now {
			return promoted
		}
		c.pending.pop()
		c.ready.push(m)
		promoted = append(promoted, m)
	}
}

// collectLocked returns matching messages sorted by enqueue sequence.
func (c *core) collectLocked(match func(*Message) bool) []*Message {
	var out []*Message
	for _, m := range c.byID {
		if match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EnqueueSequence < out[j].EnqueueSequence
	})
	return out
}

// persistLocked writes the full snapshot through the store.
func (c *core) persistLocked(ctx context.Context) error {
	msgs := c.collectLocked(func(*Message) bool { return true })
	st := &State{
		Type:         c.qtype,
		Options:      c.opts,
		LastSequence: c.lastSeq,
		Messages:     msgs,
	}
	if err := c.store.SaveQueue(ctx, c.name, st); err != nil {
		return fmt.Errorf("persist queue %q: %w", c.name, err)
	}
	return nil
}

// restore rebuilds in-memory structures from a snapshot.
func (c *core) restore(st *State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowMs()
	c.opts = st.Options
	c.lastSeq = st.LastSequence
	for _, m := range st.Messages {
		if m.ID == "" {
			return fmt.Errorf("message without id")
		}
		if !m.Status.Valid() {
			return fmt.Errorf("message %s has unknown status %q", m.ID, m.Status)
		}
		if _, dup := c.byID[m.ID]; dup {
			return fmt.Errorf("duplicate message id %s", m.ID)
		}
		m.QueueName = c.name
		m.heapIdx = 0
		m.heapLoc = locNone
		c.byID[m.ID] = m
		if m.Status == StatusAvailable {
			c.placeAvailableLocked(m, now)
		}
		if m.EnqueueSequence > c.lastSeq {
			c.lastSeq = m.EnqueueSequence
		}
	}
	return nil
}

func copyAttrs(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// withDeadLetterAttrs returns a copy of attrs stamped with dead-letter
// metadata.
func withDeadLetterAttrs(attrs map[string]string, reason, source string, receiveCount int, nowMs int64) map[string]string {
	out := make(map[string]string, len(attrs)+4)
	for k, v := range attrs {
		out[k] = v
	}
	out[AttrDeadLetterReason] = reason
	out[AttrSourceQueue] = source
	out[AttrReceiveCount] = strconv.Itoa(receiveCount)
	out[AttrDeadLetteredAt] = strconv.FormatInt(nowMs, 10)
	return out
}
