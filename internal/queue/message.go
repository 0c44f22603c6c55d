package queue

import (
	"fmt"
	"time"
)

// Type identifies the ordering discipline of a queue.
type Type string

// Queue types
const (
	TypeFifo     Type = "fifo"
	TypePriority Type = "priority"
	TypeDelayed  Type = "delayed"
)

// Valid reports whether t is a known queue type.
func (t Type) Valid() bool {
	switch t {
	case TypeFifo, TypePriority, TypeDelayed:
		return true
	default:
		return false
	}
}

// Status tracks where a message sits in its delivery lifecycle.
type Status string

// Message statuses
const (
	StatusAvailable    Status = "available"
	StatusInFlight     Status = "in_flight"
	StatusDeadLettered Status = "dead_lettered"
)

// Valid reports whether s is a known message status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusInFlight, StatusDeadLettered:
		return true
	default:
		return false
	}
}

// ThresholdReason is the dead-letter reason recorded when a message's
// receive count reaches the queue's limit.
func ThresholdReason(max int) string {
	return fmt.Sprintf("receive count reached %d", max)
}

// Attribute keys stamped onto messages during dead-letter handling.
const (
	AttrDeadLetterReason = "quern-dead-letter-reason"
	AttrDeadLetteredAt   = "quern-dead-lettered-at"
	AttrSourceQueue      = "quern-source-queue"
	AttrReceiveCount     = "quern-receive-count"
)

// Message is a single queued message. Timestamps are UTC milliseconds.
// A zero VisibilityDeadline means no outstanding lease.
type Message struct {
	ID                 string            `json:"id"`
	Body               []byte            `json:"body"`
	Attributes         map[string]string `json:"attributes,omitempty"`
	QueueName          string            `json:"queueName"`
	EnqueueSequence    uint64            `json:"enqueueSequence"`
	Priority           int               `json:"priority"`
	EnqueuedAt         int64             `json:"enqueuedAt"`
	AvailableAt        int64             `json:"availableAt"`
	VisibilityDeadline int64             `json:"visibilityDeadline,omitempty"`
	ReceiveCount       int               `json:"receiveCount"`
	Status             Status            `json:"status"`

	// heap bookkeeping, never persisted
	heapIdx int
	heapLoc heapLoc
}

// Clone returns a deep copy safe to hand outside the queue's lock.
func (m *Message) Clone() *Message {
	out := *m
	out.heapIdx = 0
	out.heapLoc = locNone
	if m.Body != nil {
		out.Body = append([]byte(nil), m.Body...)
	}
	if m.Attributes != nil {
		out.Attributes = make(map[string]string, len(m.Attributes))
		for k, v := range m.Attributes {
			out.Attributes[k] = v
		}
	}
	return &out
}

// Options tune delivery behavior for one queue. DeadLetterQueue is a weak
// reference by name; it is persisted with the options so the link survives
// restarts.
type Options struct {
	VisibilityTimeoutSeconds int    `json:"visibilityTimeoutSeconds"`
	MaxReceiveCount          int    `json:"maxReceiveCount"`
	MessageRetentionSeconds  int    `json:"messageRetentionSeconds"`
	DeadLetterQueue          string `json:"deadLetterQueueName,omitempty"`
}

// Option defaults
const (
	DefaultVisibilityTimeoutSeconds = 30
	DefaultMaxReceiveCount          = 5
	DefaultMessageRetentionSeconds  = 4 * 24 * 60 * 60
)

// DefaultOptions returns the option set applied when a queue is created
// without explicit settings.
func DefaultOptions() Options {
	return Options{
		VisibilityTimeoutSeconds: DefaultVisibilityTimeoutSeconds,
		MaxReceiveCount:          DefaultMaxReceiveCount,
		MessageRetentionSeconds:  DefaultMessageRetentionSeconds,
	}
}

func (o Options) visibilityTimeoutMs() int64 {
	return int64(o.VisibilityTimeoutSeconds) * 1000
}

func (o Options) retentionMs() int64 {
	return int64(o.MessageRetentionSeconds) * 1000
}

// State is the full persisted snapshot of one queue: its type, options, the
// last issued sequence number, and every live message. Messages are ordered
// by enqueue sequence.
type State struct {
	Type         Type       `json:"type"`
	Options      Options    `json:"options"`
	LastSequence uint64     `json:"lastSequence"`
	Messages     []*Message `json:"messages"`
}

// Stats reports live message counts by lifecycle position. Delayed counts
// available messages whose availableAt is still in the future.
type Stats struct {
	Available    int `json:"available"`
	InFlight     int `json:"inFlight"`
	Delayed      int `json:"delayed"`
	DeadLettered int `json:"deadLettered"`
}

// Total returns the number of messages in any state.
func (s Stats) Total() int {
	return s.Available + s.InFlight + s.Delayed + s.DeadLettered
}

// EnqueueRequest describes one message to enqueue. Delay is honored by
// delayed queues and forced to zero elsewhere.
type EnqueueRequest struct {
	Body       []byte
	Attributes map[string]string
	Priority   int
	Delay      time.Duration
}

// MaintenanceResult reports what a single sweep changed in one queue.
type MaintenanceResult struct {
	// Promoted lists delayed message ids that became visible.
	Promoted []string
	// Requeued lists ids whose expired leases were returned to available.
	Requeued []string
	// DeadLettered lists ids newly marked dead-lettered by the receive-count
	// threshold. Routing into the dead-letter queue happens afterwards via
	// DeadLetters and Remove, duplicate first and remove second, so a crash
	// between the two steps duplicates instead of losing.
	DeadLettered []string
	// Expired lists ids deleted by retention.
	Expired []string
}

// Changed reports whether the sweep mutated persisted state.
func (r MaintenanceResult) Changed() bool {
	return len(r.Requeued) > 0 || len(r.DeadLettered) > 0 || len(r.Expired) > 0
}
