package id

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

// stubNow replaces the package clock with a settable millisecond value for
// the duration of the test.
func stubNow(t *testing.T) *atomic.Int64 {
	t.Helper()
	var ms atomic.Int64
	orig := NowMs
	NowMs = ms.Load
	t.Cleanup(func() { NowMs = orig })
	return &ms
}

func tsOf(id ID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]))
}

func TestNextOrdersWithinOneMillisecond(t *testing.T) {
	clock := stubNow(t)
	clock.Store(1000)
	g := NewGenerator()

	prev := g.Next()
	for i := 0; i < 100; i++ {
		cur := g.Next()
		if prev.Compare(cur) >= 0 {
			t.Fatalf("id %d not increasing: %s then %s", i, prev, cur)
		}
		if prev.String() >= cur.String() {
			t.Fatalf("hex form should sort like the raw ids")
		}
		prev = cur
	}
}

func TestNextPinsOnClockRegression(t *testing.T) {
	clock := stubNow(t)
	clock.Store(1000)
	g := NewGenerator()

	a := g.Next()
	clock.Store(900)
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected b>a despite clock regression")
	}
	if got := tsOf(b); got != 1000 {
		t.Fatalf("timestamp should stay pinned at 1000, got %d", got)
	}
}

func TestNextWaitsOutSequenceExhaustion(t *testing.T) {
	clock := stubNow(t)
	clock.Store(2000)
	g := NewGenerator()
	g.lastMs = 2000
	g.sequence = math.MaxUint64 - 1

	last := g.Next()
	if got := g.sequence; got != math.MaxUint64 {
		t.Fatalf("sequence should sit at max, got %d", got)
	}

	released := make(chan ID, 1)
	go func() { released <- g.Next() }()

	time.Sleep(20 * time.Millisecond)
	clock.Store(2001)

	select {
	case next := <-released:
		if last.Compare(next) >= 0 {
			t.Fatalf("expected %s < %s", last, next)
		}
		if got := tsOf(next); got != 2001 {
			t.Fatalf("expected timestamp 2001 after exhaustion, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("generator never released after the clock advanced")
	}
}

func TestParseRoundTrip(t *testing.T) {
	g := NewGenerator()
	orig := g.Next()
	parsed, err := Parse(orig.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != orig {
		t.Fatalf("round trip mismatch: %v vs %v", parsed, orig)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	if _, err := Parse("abc"); err == nil {
		t.Fatalf("short input should fail")
	}
	if _, err := Parse("zz000000000000000000000000000000"); err == nil {
		t.Fatalf("non-hex input should fail")
	}
}
