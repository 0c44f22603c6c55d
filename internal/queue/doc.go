// Package queue implements the broker's queue variants with lease-based
// delivery over snapshot persistence.
//
// Three variants share one core and differ only in ordering:
//
// - FifoQueue: strict enqueue-sequence order
// - PriorityQueue: (-priority, sequence) order via a binary heap
// - DelayedQueue: invisible until availableAt, then fifo among eligible
//
// # State
//
// Each queue owns its full message set in memory, guarded by one mutex:
//
//	byID                    - every live message by id
//	ready heap              - available and due, ordered by the variant
//	pending heap            - available but not yet due (availableAt, seq)
//	lastSeq                 - last issued enqueue sequence, never reused
//
// Every mutating operation rewrites the queue's snapshot through its Store
// before reporting success, and rolls the in-memory change back when the
// write fails. Rebuilding after a restart derives heap placement from
// message fields alone, never from snapshot order.
//
// # Message Lifecycle
//
//  1. Enqueue: available, availableAt = now (+ delay on delayed queues)
//  2. Dequeue: in_flight, visibilityDeadline = now + visibility timeout
//  3. Ack: deleted
//  4. Lease expiry (sweep): available again, receiveCount incremented once
//  5. Threshold breach (sweep): marked dead_lettered in place; the broker
//     then routes marked messages into the configured dead-letter queue,
//     duplicate first and remove second
//  6. Retention (sweep): deleted regardless of status
//
// # At-Least-Once Semantics
//
// Messages are delivered at least once. Duplicates occur when a consumer
// crashes after processing but before Ack, or when a lease expires while
// processing. Consumers should be idempotent.
package queue
