package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quernio/quern/internal/queue"
	"github.com/quernio/quern/internal/storage"
)

func sampleState() *queue.State {
	return &queue.State{
		Type:         queue.TypePriority,
		Options:      queue.DefaultOptions(),
		LastSequence: 1,
		Messages: []*queue.Message{
			{ID: "m1", Body: []byte("a"), EnqueueSequence: 1, Priority: 7, Status: queue.StatusAvailable},
		},
	}
}

func TestRoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SaveQueue(ctx, "orders", sampleState()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A fresh adapter over the same directory sees the snapshot.
	s2, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := s2.LoadQueue(ctx, "orders")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Type != queue.TypePriority || got.Messages[0].Priority != 7 {
		t.Fatalf("round trip lost data: %+v", got)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Dir: dir, Sync: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := s.SaveQueue(context.Background(), "orders", sampleState()); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Fatalf("want exactly one snapshot file, got %d", len(entries))
	}
}

func TestLoadMissingQueue(t *testing.T) {
	s, err := Open(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.LoadQueue(context.Background(), "nope"); !errors.Is(err, storage.ErrQueueNotFound) {
		t.Fatalf("want ErrQueueNotFound, got %v", err)
	}
}

func TestLoadCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "orders.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.LoadQueue(context.Background(), "orders"); err == nil {
		t.Fatalf("corrupt snapshot should fail to load")
	}
}

func TestDeleteQueue(t *testing.T) {
	s, err := Open(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()

	if err := s.DeleteQueue(ctx, "orders"); !errors.Is(err, storage.ErrQueueNotFound) {
		t.Fatalf("want ErrQueueNotFound, got %v", err)
	}
	if err := s.SaveQueue(ctx, "orders", sampleState()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.DeleteQueue(ctx, "orders"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.LoadQueue(ctx, "orders"); !errors.Is(err, storage.ErrQueueNotFound) {
		t.Fatalf("want ErrQueueNotFound after delete, got %v", err)
	}
}

func TestListQueuesPrefix(t *testing.T) {
	s, err := Open(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	for _, name := range []string{"orders", "orders-dlq", "timers"} {
		if err := s.SaveQueue(ctx, name, sampleState()); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	names, err := s.ListQueues(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 3 || names[0] != "orders" {
		t.Fatalf("list all: %v", names)
	}

	names, err = s.ListQueues(ctx, "orders")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("prefix list: %v", names)
	}
}

func TestPing(t *testing.T) {
	s, err := Open(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
