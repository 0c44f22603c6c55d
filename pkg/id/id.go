package id

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"
)

// ID is a 128-bit, lexicographically sortable message identifier encoded as
// 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence].
type ID [16]byte

// String returns the 32-character lowercase hex form.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int {
	return bytes.Compare(i[:], other[:])
}

// Parse decodes the 32-character hex form produced by String.
func Parse(s string) (ID, error) {
	if len(s) != 32 {
		return ID{}, fmt.Errorf("id must be 32 hex characters, got %d", len(s))
	}
	var out ID
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return ID{}, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return out, nil
}

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Generator produces monotonically increasing IDs per process. A clock
// regression pins the timestamp to the last seen millisecond and keeps
// counting; sequence exhaustion within one millisecond waits out the clock.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// Next returns a new ID strictly greater than every ID this generator has
// returned before.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	switch {
	case ms > g.lastMs:
		g.lastMs = ms
		g.sequence = 0
	case g.sequence == math.MaxUint64:
		// Sequence exhausted inside one millisecond; wait for the clock to
		// move past it.
		for ms <= g.lastMs {
			time.Sleep(time.Millisecond / 8)
			ms = NowMs()
		}
		g.lastMs = ms
		g.sequence = 0
	default:
		// Same millisecond, or the clock went backwards; stay pinned to
		// lastMs and keep counting.
		g.sequence++
	}

	var out ID
	binary.BigEndian.PutUint64(out[0:8], uint64(g.lastMs))
	binary.BigEndian.PutUint64(out[8:16], g.sequence)
	return out
}
