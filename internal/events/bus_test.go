package events

import (
	"testing"
	"time"

	"github.com/quernio/quern/internal/queue"
)

func recvOne(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}

func TestPublishFansOut(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	bus.Publish(MessageSent("orders", "m1"))

	for _, sub := range []*Subscription{a, b} {
		ev := recvOne(t, sub)
		if ev.Type != TypeMessageSent || ev.QueueName != "orders" || ev.MessageID != "m1" {
			t.Fatalf("wrong event: %+v", ev)
		}
		if ev.Time == 0 {
			t.Fatalf("publish should stamp time")
		}
	}
}

func TestFullBufferDropsAndCounts(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	sub := bus.Subscribe()
	defer sub.Close()

	bus.Publish(MessageSent("orders", "m1"))
	bus.Publish(MessageSent("orders", "m2"))
	bus.Publish(MessageSent("orders", "m3"))

	if got := sub.Dropped(); got != 2 {
		t.Fatalf("dropped: got %d want 2", got)
	}
	ev := recvOne(t, sub)
	if ev.MessageID != "m1" {
		t.Fatalf("buffered event should survive: %+v", ev)
	}
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	sub := bus.Subscribe()
	sub.Close()

	// Publishing after a subscriber detached must not panic.
	bus.Publish(MessageSent("orders", "m1"))

	if _, ok := <-sub.C; ok {
		t.Fatalf("closed subscription should have a closed channel")
	}
}

func TestBusCloseClosesSubscribers(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()

	bus.Publish(MessageSent("orders", "m1"))
	bus.Close()

	// Buffered events drain first, then the channel reports closed.
	ev := recvOne(t, sub)
	if ev.MessageID != "m1" {
		t.Fatalf("buffered event lost on close: %+v", ev)
	}
	if _, ok := <-sub.C; ok {
		t.Fatalf("channel should close after drain")
	}

	late := bus.Subscribe()
	if _, ok := <-late.C; ok {
		t.Fatalf("subscribing to a closed bus should yield a closed channel")
	}
}

func TestConstructorsFillPayloads(t *testing.T) {
	ev := MessageDeadLettered("orders", "m1", "receive count reached 5")
	if ev.Type != TypeMessageDeadLettered || ev.Reason != "receive count reached 5" {
		t.Fatalf("dead letter payload: %+v", ev)
	}

	ev = MessagesReceived("orders", []string{"m1", "m2"})
	if len(ev.MessageIDs) != 2 {
		t.Fatalf("received payload: %+v", ev)
	}

	ev = MessageDelayChanged("timers", "m1", 90*time.Second)
	if ev.DelayMs != 90_000 {
		t.Fatalf("delay payload: %+v", ev)
	}

	opts := queue.DefaultOptions()
	ev = QueueAttributesUpdated("orders", opts)
	if ev.Options == nil || ev.Options.VisibilityTimeoutSeconds != opts.VisibilityTimeoutSeconds {
		t.Fatalf("attributes payload: %+v", ev)
	}

	res := queue.MaintenanceResult{Requeued: []string{"a", "b"}, Expired: []string{"c"}}
	sw := SweepResultOf(res)
	if sw.Requeued != 2 || sw.Expired != 1 || sw.Promoted != 0 {
		t.Fatalf("sweep result: %+v", sw)
	}

	ev = MaintenanceCompleted(map[string]SweepResult{"orders": sw})
	if ev.Type != TypeMaintenanceCompleted || ev.Results["orders"].Requeued != 2 {
		t.Fatalf("maintenance payload: %+v", ev)
	}
}
