package events

import (
	"time"

	"github.com/quernio/quern/internal/queue"
)

// Type names a broker lifecycle event.
type Type string

// Event types
const (
	TypeMessageSent            Type = "messageSent"
	TypeMessagesReceived       Type = "messagesReceived"
	TypeMessageAcknowledged    Type = "messageAcknowledged"
	TypeMessageDeadLettered    Type = "messageDeadLettered"
	TypeMessageFailed          Type = "messageFailed"
	TypeMessageExpired         Type = "messageExpired"
	TypeMessageRequeued        Type = "messageRequeued"
	TypeQueuePurged            Type = "queuePurged"
	TypeQueueAttributesUpdated Type = "queueAttributesUpdated"
	TypeMessagesVisible        Type = "messagesVisible"
	TypeMessageDelayChanged    Type = "messageDelayChanged"
	TypeMaintenanceCompleted   Type = "maintenanceCompleted"
)

// Event is one broker lifecycle notification. Only the fields relevant to
// the event's type are set; Time is stamped in UTC milliseconds at publish.
type Event struct {
	Type       Type                   `json:"type"`
	Time       int64                  `json:"time"`
	QueueName  string                 `json:"queueName,omitempty"`
	MessageID  string                 `json:"messageId,omitempty"`
	MessageIDs []string               `json:"messageIds,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Count      int                    `json:"count,omitempty"`
	DelayMs    int64                  `json:"newDelayMs,omitempty"`
	Options    *queue.Options         `json:"options,omitempty"`
	Results    map[string]SweepResult `json:"results,omitempty"`
}

// SweepResult summarizes one queue's share of a maintenance pass. Error is
// set when the sweep for that queue failed; its counts then cover whatever
// completed before the failure.
type SweepResult struct {
	Promoted     int    `json:"promoted"`
	Requeued     int    `json:"requeued"`
	DeadLettered int    `json:"deadLettered"`
	Expired      int    `json:"expired"`
	Error        string `json:"error,omitempty"`
}

// SweepResultOf condenses a queue maintenance result into event counts.
func SweepResultOf(res queue.MaintenanceResult) SweepResult {
	return SweepResult{
		Promoted:     len(res.Promoted),
		Requeued:     len(res.Requeued),
		DeadLettered: len(res.DeadLettered),
		Expired:      len(res.Expired),
	}
}

// MessageSent reports a message accepted into a queue.
func MessageSent(queueName, id string) Event {
	return Event{Type: TypeMessageSent, QueueName: queueName, MessageID: id}
}

// MessagesReceived reports a batch of messages leased to a consumer.
func MessagesReceived(queueName string, ids []string) Event {
	return Event{Type: TypeMessagesReceived, QueueName: queueName, MessageIDs: ids}
}

// MessageAcknowledged reports a message removed by its consumer.
func MessageAcknowledged(queueName, id string) Event {
	return Event{Type: TypeMessageAcknowledged, QueueName: queueName, MessageID: id}
}

// MessageDeadLettered reports a message taken out of normal delivery.
func MessageDeadLettered(queueName, id, reason string) Event {
	return Event{Type: TypeMessageDeadLettered, QueueName: queueName, MessageID: id, Reason: reason}
}

// MessageFailed reports a processing failure attributed to one message.
func MessageFailed(queueName, id, errMsg string) Event {
	return Event{Type: TypeMessageFailed, QueueName: queueName, MessageID: id, Error: errMsg}
}

// MessageExpired reports a message deleted by retention.
func MessageExpired(queueName, id string) Event {
	return Event{Type: TypeMessageExpired, QueueName: queueName, MessageID: id}
}

// MessageRequeued reports an expired lease returning a message to available.
func MessageRequeued(queueName, id string) Event {
	return Event{Type: TypeMessageRequeued, QueueName: queueName, MessageID: id}
}

// QueuePurged reports every message dropped from a queue.
func QueuePurged(queueName string, count int) Event {
	return Event{Type: TypeQueuePurged, QueueName: queueName, Count: count}
}

// QueueAttributesUpdated reports a queue's options changing.
func QueueAttributesUpdated(queueName string, opts queue.Options) Event {
	return Event{Type: TypeQueueAttributesUpdated, QueueName: queueName, Options: &opts}
}

// MessagesVisible reports delayed messages becoming eligible for delivery.
func MessagesVisible(queueName string, count int) Event {
	return Event{Type: TypeMessagesVisible, QueueName: queueName, Count: count}
}

// MessageDelayChanged reports an available message rescheduled.
func MessageDelayChanged(queueName, id string, delay time.Duration) Event {
	return Event{Type: TypeMessageDelayChanged, QueueName: queueName, MessageID: id, DelayMs: delay.Milliseconds()}
}

// MaintenanceCompleted reports one full sweep across all queues.
func MaintenanceCompleted(results map[string]SweepResult) Event {
	return Event{Type: TypeMaintenanceCompleted, Results: results}
}
