// Package storage defines the pluggable persistence seam for queue
// snapshots.
//
// # Overview
//
// Queues persist their entire state (options, sequence counter, messages)
// as one snapshot per mutation, so an Adapter only needs five operations:
// list, load, save, delete, ping. Atomicity is per queue; adapters never
// need cross-queue transactions.
//
// Implementations:
//   - memorystore: process-local, for tests and ephemeral brokers
//   - filestore: one JSON file per queue with atomic replace
//   - pebblestore: Pebble-backed, one meta key plus one key per message
//   - sqlitestore: SQLite-backed, queues and messages tables
package storage
