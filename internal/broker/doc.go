// Package broker assembles the queue variants, storage adapter, event bus,
// and maintenance scheduler into one embeddable System.
//
// # Overview
//
// A System is the embedding application's single entry point. It keeps a
// registry of named queues, all persisted through one storage.Adapter, and
// exposes the full operation set: queue management, send/receive/ack,
// dead-lettering, delay and visibility changes, peeking with CEL filters,
// redrive, purge, and stats. Opening a System reloads every persisted queue
// so delivery state survives restarts.
//
// API surface (internal)
//
//	sys, err := broker.New(ctx, store,
//		broker.WithLogger(logger),
//		broker.WithAutoMaintenance(true),
//	)
//	defer sys.Close()
//
//	_ = sys.CreateQueue(ctx, "orders", queue.TypeFifo, nil)
//	id, _ := sys.SendMessage(ctx, "orders", queue.EnqueueRequest{Body: body})
//	msgs, _ := sys.ReceiveMessages(ctx, "orders", 10)
//	_ = sys.AcknowledgeMessage(ctx, "orders", msgs[0].ID)
//
// # Errors
//
// Failures map onto four types checked with errors.As: QueueNotFoundError,
// MessageNotFoundError, QueueValidationError for malformed input, and
// QueueError for everything that breaks inside a valid operation.
//
// # Maintenance
//
// A background loop (or an explicit RunMaintenance call) sweeps every queue
// concurrently: due delayed messages become visible, expired leases return
// to available with an incremented receive count, receive-count breaches
// are dead-lettered and routed, and retention reaps old messages. One
// queue's storage failure is reported in its sweep result and never blocks
// the others.
package broker
