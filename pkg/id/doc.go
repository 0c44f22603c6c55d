// Package id provides 128-bit, lexicographically sortable message
// identifiers.
//
// # Format
//
// An ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence].
// Byte-wise comparison preserves chronological order, and IDs generated
// within the same millisecond remain strictly increasing by sequence, so the
// hex string form sorts the same way messages were created.
//
// # Monotonicity
//
// A Generator never hands out an ID that compares below one it already
// issued. A clock that jumps backwards leaves the timestamp pinned at the
// last observed millisecond while the sequence keeps counting, and a
// sequence that would wrap inside one millisecond blocks until the clock
// moves on.
//
// Usage
//
//	g := id.NewGenerator()
//	s := g.Next().String()    // 32-char hex message id
//	parsed, err := id.Parse(s)
package id
