package broker

import (
	"errors"
	"fmt"

	"github.com/quernio/quern/internal/queue"
)

// ErrClosed rejects operations on a broker that has been shut down.
var ErrClosed = errors.New("broker closed")

// QueueNotFoundError reports an operation against a queue that does not
// exist or was deleted.
type QueueNotFoundError struct {
	Queue string
}

func (e *QueueNotFoundError) Error() string {
	return fmt.Sprintf("queue %q not found", e.Queue)
}

// MessageNotFoundError reports an operation naming a message that is absent,
// already acknowledged, or whose lease was reclaimed.
type MessageNotFoundError struct {
	Queue string
	ID    string
}

func (e *MessageNotFoundError) Error() string {
	return fmt.Sprintf("message %s not found in queue %q", e.ID, e.Queue)
}

// QueueValidationError rejects malformed input before it reaches a queue:
// bad names, unknown types, out-of-range options, or a request feature the
// target queue type cannot honor.
type QueueValidationError struct {
	Queue  string
	Reason string
}

func (e *QueueValidationError) Error() string {
	return fmt.Sprintf("invalid queue %q: %s", e.Queue, e.Reason)
}

// QueueError wraps a failure inside an otherwise well-formed operation, such
// as a persistence error or an operation the queue type rejects at runtime.
type QueueError struct {
	Queue string
	Op    string
	Err   error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue %q: %s: %v", e.Queue, e.Op, e.Err)
}

func (e *QueueError) Unwrap() error { return e.Err }

// mapMessageError lifts queue sentinel errors into the broker taxonomy for
// operations that target a single message.
func mapMessageError(queueName, messageID, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrMessageNotFound):
		return &MessageNotFoundError{Queue: queueName, ID: messageID}
	case errors.Is(err, queue.ErrClosed):
		return &QueueNotFoundError{Queue: queueName}
	default:
		return &QueueError{Queue: queueName, Op: op, Err: err}
	}
}

// mapQueueError lifts queue sentinel errors for queue-level operations.
func mapQueueError(queueName, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrClosed):
		return &QueueNotFoundError{Queue: queueName}
	default:
		return &QueueError{Queue: queueName, Op: op, Err: err}
	}
}
