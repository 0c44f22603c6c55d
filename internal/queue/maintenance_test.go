package queue

import (
	"context"
	"testing"
	"time"
)

func TestSweepRequeuesExpiredLeaseOnce(t *testing.T) {
	q, store, clk := openTestQueue(t, TypeFifo, DefaultOptions())
	enqueue(t, q, "a")
	got := dequeue(t, q, 1)

	clk.advance(31 * time.Second)
	before := store.saveCount()
	res := sweep(t, q)
	if len(res.Requeued) != 1 || res.Requeued[0] != got[0].ID {
		t.Fatalf("expected one requeue: %+v", res)
	}
	if store.saveCount() != before+1 {
		t.Fatalf("changed sweep should persist")
	}

	// The message is available again; a second sweep must not touch it.
	res = sweep(t, q)
	if len(res.Requeued) != 0 {
		t.Fatalf("second sweep should be a no-op: %+v", res)
	}

	back := dequeue(t, q, 1)
	if back[0].ReceiveCount != 1 {
		t.Fatalf("receive count should be exactly 1, got %d", back[0].ReceiveCount)
	}
}

func TestSweepThresholdMarksDeadLettered(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxReceiveCount = 2
	q, _, clk := openTestQueue(t, TypeFifo, opts)
	msgs := enqueue(t, q, "a")

	dequeue(t, q, 1)
	clk.advance(31 * time.Second)
	res := sweep(t, q)
	if len(res.DeadLettered) != 0 {
		t.Fatalf("first expiry should not breach: %+v", res)
	}

	dequeue(t, q, 1)
	clk.advance(31 * time.Second)
	res = sweep(t, q)
	if len(res.Requeued) != 1 || len(res.DeadLettered) != 1 {
		t.Fatalf("second expiry should requeue then breach in the same sweep: %+v", res)
	}
	if res.DeadLettered[0] != msgs[0].ID {
		t.Fatalf("wrong id marked: %v", res.DeadLettered)
	}

	dead := q.DeadLetters()
	if len(dead) != 1 {
		t.Fatalf("expected one dead-lettered message, got %d", len(dead))
	}
	m := dead[0]
	if m.Status != StatusDeadLettered {
		t.Fatalf("status: %v", m.Status)
	}
	if m.Attributes[AttrDeadLetterReason] != "receive count reached 2" {
		t.Fatalf("reason: %q", m.Attributes[AttrDeadLetterReason])
	}
	if m.Attributes[AttrReceiveCount] != "2" {
		t.Fatalf("receive count attribute: %q", m.Attributes[AttrReceiveCount])
	}

	if got := dequeue(t, q, 1); len(got) != 0 {
		t.Fatalf("dead-lettered message must not deliver")
	}
}

func TestSweepThresholdDisabledWhenZero(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxReceiveCount = 0
	q, _, clk := openTestQueue(t, TypeFifo, opts)
	enqueue(t, q, "a")

	for i := 0; i < 3; i++ {
		dequeue(t, q, 1)
		clk.advance(31 * time.Second)
		res := sweep(t, q)
		if len(res.DeadLettered) != 0 {
			t.Fatalf("threshold disabled, nothing should dead-letter: %+v", res)
		}
	}

	got := dequeue(t, q, 1)
	if got[0].ReceiveCount != 3 {
		t.Fatalf("receive count should keep climbing, got %d", got[0].ReceiveCount)
	}
}

func TestSweepRetentionReapsAllStatuses(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxReceiveCount = 0
	opts.MessageRetentionSeconds = 60
	q, _, clk := openTestQueue(t, TypeFifo, opts)
	enqueue(t, q, "a", "b", "c")

	leased := dequeue(t, q, 2)
	if _, err := q.DeadLetter(context.Background(), leased[1].ID, "boom"); err != nil {
		t.Fatalf("dead letter: %v", err)
	}

	clk.advance(61 * time.Second)
	res := sweep(t, q)
	if len(res.Requeued) != 1 {
		t.Fatalf("expired lease should still requeue first: %+v", res)
	}
	if len(res.Expired) != 3 {
		t.Fatalf("retention should reap every status: %+v", res)
	}
	if st := q.Stats(); st.Total() != 0 {
		t.Fatalf("queue should be empty: %+v", st)
	}
}

func TestSweepRetentionDisabledWhenZero(t *testing.T) {
	opts := DefaultOptions()
	opts.MessageRetentionSeconds = 0
	q, _, clk := openTestQueue(t, TypeFifo, opts)
	enqueue(t, q, "a")

	clk.advance(240 * time.Hour)
	res := sweep(t, q)
	if len(res.Expired) != 0 {
		t.Fatalf("retention disabled, nothing should expire: %+v", res)
	}
	if st := q.Stats(); st.Available != 1 {
		t.Fatalf("message should survive: %+v", st)
	}
}

func TestSweepPromoteOnlySkipsPersist(t *testing.T) {
	q, store, clk := openTestQueue(t, TypeDelayed, DefaultOptions())
	ctx := context.Background()
	msgs, err := q.Enqueue(ctx, []EnqueueRequest{{Body: []byte("later"), Delay: 5 * time.Second}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	clk.advance(6 * time.Second)
	before := store.saveCount()
	res := sweep(t, q)
	if len(res.Promoted) != 1 || res.Promoted[0] != msgs[0].ID {
		t.Fatalf("expected promotion: %+v", res)
	}
	if res.Changed() {
		t.Fatalf("promotion alone should not count as a state change")
	}
	if store.saveCount() != before {
		t.Fatalf("promote-only sweep should skip the snapshot write")
	}

	if got := dequeue(t, q, 1); len(got) != 1 {
		t.Fatalf("promoted message should deliver")
	}
}

func TestSweepEmptyQueueIsNoOp(t *testing.T) {
	q, store, _ := openTestQueue(t, TypeFifo, DefaultOptions())
	before := store.saveCount()
	res := sweep(t, q)
	if res.Changed() || len(res.Promoted) != 0 {
		t.Fatalf("empty sweep should report nothing: %+v", res)
	}
	if store.saveCount() != before {
		t.Fatalf("empty sweep should not persist")
	}
}
