// Package pebblestore persists queue snapshots in a Pebble database.
//
// Each queue occupies one key span:
//
//	q/{name}/meta           type, options, lastSequence
//	q/{name}/msg/{seq_be8}  one message per key, ordered by sequence
//
// SaveQueue replaces the whole span in one batch (range delete plus fresh
// writes), so a snapshot is either fully applied or not at all.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	store := pebblestore.NewStore(db)
//	defer store.Close()
package pebblestore
