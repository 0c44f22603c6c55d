package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuffer is the per-subscription channel capacity used when the bus
// is built with a non-positive buffer size.
const DefaultBuffer = 1024

// Bus fans broker events out to subscribers. Publishing never blocks: a
// subscription whose buffer is full loses the event and counts the drop, so
// a slow consumer cannot stall queue operations.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

// NewBus returns a bus whose subscriptions buffer up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new subscription. Subscribing to a closed bus
// returns a subscription whose channel is already closed.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{ch: make(chan Event, b.buffer), bus: b}
	s.C = s.ch

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.close()
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers e to every subscription, stamping the event time when
// the caller left it zero.
func (b *Bus) Publish(e Event) {
	if e.Time == 0 {
		e.Time = time.Now().UnixMilli()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

// Close shuts the bus down and closes every subscription channel. Buffered
// events remain readable until drained.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// Subscription is one receiver on the bus. Events arrive on C; the channel
// closes when either side calls Close.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	bus     *Bus
	dropped atomic.Uint64
	once    sync.Once
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.close()
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Dropped returns how many events were lost to a full buffer.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}
