// Package events defines the broker's lifecycle event stream.
//
// # Overview
//
// Every observable state change in the broker is published as an Event on a
// Bus: sends, receives, acks, dead-lettering, lease expiry, delay changes,
// purges, option updates, and the per-sweep maintenance summary. The broker
// owns a single Bus instance; there is no package-level singleton.
//
// API surface (internal)
//
//	bus := events.NewBus(0) // 0 picks DefaultBuffer
//	sub := bus.Subscribe()
//	defer sub.Close()
//
//	bus.Publish(events.MessageSent("orders", id))
//
//	for ev := range sub.C {
//		_ = ev.QueueName
//	}
//
// # Delivery semantics
//
// Publish is non-blocking. Each subscription has its own buffer; when the
// buffer is full the event is dropped for that subscription and counted,
// retrievable via Dropped. Consumers that need every event must drain
// promptly or subscribe with a larger bus buffer.
package events
