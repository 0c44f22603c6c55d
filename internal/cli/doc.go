// Package cli provides the `quern` command-line interface.
//
// Every command opens the broker directly over the configured storage
// backend, performs its operation, and shuts down. There is no server:
// the CLI is an embedding application like any other.
//
// # Configuration
//
// Settings resolve in order: built-in defaults, then --config (JSON or
// YAML), then QUERN_* environment variables, then flags. The data
// directory defaults to an OS-specific application data path.
//
// Usage
//
//	quern queues create --name orders --type fifo
//	quern queues create --name orders-dead --type fifo
//	quern queues set-dlq --name orders --target orders-dead
//
//	quern send -q orders --data '{"sku":"A-17","qty":2}' --attr tenant=acme
//	quern receive -q orders --max 10
//	quern ack -q orders --id MESSAGE_ID
//
//	quern peek -q orders --filter 'receive_count > 2'
//	quern redrive -q orders-dead
//	quern queues purge --name orders --confirm
//
//	quern sweep
//	quern stats
//	quern watch
//
// Notes
//
//   - receive leases messages; unacknowledged leases expire after the
//     queue's visibility timeout and the messages are redelivered. Use
//     --ack to acknowledge immediately after printing.
//   - sweep runs one maintenance pass; watch keeps the loop running and
//     prints lifecycle events as JSON lines until interrupted.
//   - file, pebble, and sqlite backends persist under --data-dir; memory
//     lasts only for the single invocation.
package cli
