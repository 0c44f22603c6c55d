package memorystore

import (
	"context"
	"errors"
	"testing"

	"github.com/quernio/quern/internal/queue"
	"github.com/quernio/quern/internal/storage"
)

func sampleState() *queue.State {
	return &queue.State{
		Type:         queue.TypeDelayed,
		Options:      queue.DefaultOptions(),
		LastSequence: 1,
		Messages: []*queue.Message{
			{ID: "m1", Body: []byte("a"), EnqueueSequence: 1, AvailableAt: 99, Status: queue.StatusAvailable},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.SaveQueue(ctx, "timers", sampleState()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadQueue(ctx, "timers")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Type != queue.TypeDelayed || len(got.Messages) != 1 || got.Messages[0].AvailableAt != 99 {
		t.Fatalf("round trip lost data: %+v", got)
	}
}

func TestLoadedStateIsIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.SaveQueue(ctx, "timers", sampleState()); err != nil {
		t.Fatalf("save: %v", err)
	}

	first, err := s.LoadQueue(ctx, "timers")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	first.Messages[0].Body[0] = 'X'
	first.LastSequence = 999

	second, err := s.LoadQueue(ctx, "timers")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(second.Messages[0].Body) != "a" || second.LastSequence != 1 {
		t.Fatalf("mutation leaked into store: %+v", second)
	}
}

func TestSavedStateIsIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()
	st := sampleState()
	if err := s.SaveQueue(ctx, "timers", st); err != nil {
		t.Fatalf("save: %v", err)
	}
	st.Messages[0].Body[0] = 'X'

	got, err := s.LoadQueue(ctx, "timers")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got.Messages[0].Body) != "a" {
		t.Fatalf("caller mutation leaked into store: %q", got.Messages[0].Body)
	}
}

func TestMissingAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.LoadQueue(ctx, "nope"); !errors.Is(err, storage.ErrQueueNotFound) {
		t.Fatalf("want ErrQueueNotFound, got %v", err)
	}
	if err := s.DeleteQueue(ctx, "nope"); !errors.Is(err, storage.ErrQueueNotFound) {
		t.Fatalf("want ErrQueueNotFound, got %v", err)
	}

	if err := s.SaveQueue(ctx, "timers", sampleState()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.DeleteQueue(ctx, "timers"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.LoadQueue(ctx, "timers"); !errors.Is(err, storage.ErrQueueNotFound) {
		t.Fatalf("want ErrQueueNotFound after delete, got %v", err)
	}
}

func TestListQueuesPrefix(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, name := range []string{"b-queue", "a-queue", "a-dlq"} {
		if err := s.SaveQueue(ctx, name, sampleState()); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	names, err := s.ListQueues(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 3 || names[0] != "a-dlq" || names[2] != "b-queue" {
		t.Fatalf("list should be sorted: %v", names)
	}

	names, err = s.ListQueues(ctx, "a-")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("prefix list: %v", names)
	}
}
