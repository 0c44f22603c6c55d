package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

// runCLI executes one quern invocation against a file-backed data dir and
// returns its combined output.
func runCLI(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := runCLIErr(dir, args...)
	if err != nil {
		t.Fatalf("quern %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func runCLIErr(dir string, args ...string) (string, error) {
	root := NewRoot()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append(args, "--data-dir", dir, "--storage", "file"))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func sentID(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "id: "); ok {
			return strings.TrimSpace(rest)
		}
	}
	t.Fatalf("no id in output: %s", out)
	return ""
}

func TestQueueLifecycle(t *testing.T) {
	dir := t.TempDir()

	out := runCLI(t, dir, "queues", "create", "--name", "orders", "--type", "fifo")
	if !strings.Contains(out, "status: OK") {
		t.Fatalf("create output: %s", out)
	}

	out = runCLI(t, dir, "queues", "list")
	if !strings.Contains(out, "orders") {
		t.Fatalf("list output: %s", out)
	}

	out = runCLI(t, dir, "queues", "describe", "--name", "orders")
	var info struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("describe output %q: %v", out, err)
	}
	if info.Name != "orders" || info.Type != "fifo" {
		t.Fatalf("describe = %+v", info)
	}

	runCLI(t, dir, "queues", "delete", "--name", "orders", "--confirm")
	out = runCLI(t, dir, "queues", "list")
	if strings.Contains(out, "orders") {
		t.Fatalf("list after delete: %s", out)
	}
}

func TestDeleteRequiresConfirm(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, dir, "queues", "create", "--name", "orders")

	if _, err := runCLIErr(dir, "queues", "delete", "--name", "orders"); err == nil {
		t.Fatal("delete without --confirm succeeded")
	}
	if _, err := runCLIErr(dir, "queues", "purge", "--name", "orders"); err == nil {
		t.Fatal("purge without --confirm succeeded")
	}
}

func TestSendReceiveAckFlow(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, dir, "queues", "create", "--name", "orders")

	out := runCLI(t, dir, "send", "-q", "orders", "--data", "hello quern", "--attr", "tenant=acme")
	msgID := sentID(t, out)

	out = runCLI(t, dir, "receive", "-q", "orders", "--max", "5")
	var got struct {
		ID       string            `json:"id"`
		BodyText string            `json:"body_text"`
		Attrs    map[string]string `json:"attributes"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("receive output %q: %v", out, err)
	}
	if got.ID != msgID || got.BodyText != "hello quern" || got.Attrs["tenant"] != "acme" {
		t.Fatalf("received = %+v", got)
	}

	out = runCLI(t, dir, "ack", "-q", "orders", "--id", msgID)
	if !strings.Contains(out, "status: OK") {
		t.Fatalf("ack output: %s", out)
	}

	// Acked messages are gone for good.
	if _, err := runCLIErr(dir, "ack", "-q", "orders", "--id", msgID); err == nil {
		t.Fatal("double ack succeeded")
	}
}

func TestSendBatchPrintsEveryID(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, dir, "queues", "create", "--name", "orders")

	out := runCLI(t, dir, "send", "-q", "orders", "--data", "one", "--data", "two", "--data", "three")
	if n := strings.Count(out, "id: "); n != 3 {
		t.Fatalf("ids printed = %d, want 3\n%s", n, out)
	}
}

func TestReceiveWithAutoAck(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, dir, "queues", "create", "--name", "orders")
	runCLI(t, dir, "send", "-q", "orders", "--data", "job")

	runCLI(t, dir, "receive", "-q", "orders", "--ack")

	out := runCLI(t, dir, "queues", "describe", "--name", "orders")
	var info struct {
		Stats struct {
			Available int `json:"available"`
			InFlight  int `json:"inFlight"`
		} `json:"stats"`
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("describe output %q: %v", out, err)
	}
	if info.Stats.Available != 0 || info.Stats.InFlight != 0 {
		t.Fatalf("stats after auto-ack = %+v", info.Stats)
	}
}

func TestDeadLetterAndRedrive(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, dir, "queues", "create", "--name", "orders")
	out := runCLI(t, dir, "send", "-q", "orders", "--data", "poison")
	msgID := sentID(t, out)

	runCLI(t, dir, "receive", "-q", "orders")
	runCLI(t, dir, "dead-letter", "-q", "orders", "--id", msgID, "--reason", "handler crashed")

	out = runCLI(t, dir, "peek", "-q", "orders", "--filter", `status == "dead_lettered"`)
	if !strings.Contains(out, msgID) {
		t.Fatalf("peek output: %s", out)
	}

	out = runCLI(t, dir, "redrive", "-q", "orders")
	if !strings.Contains(out, "redriven: 1") {
		t.Fatalf("redrive output: %s", out)
	}
}

func TestPeekFilter(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, dir, "queues", "create", "--name", "jobs", "--type", "priority")
	runCLI(t, dir, "send", "-q", "jobs", "--data", `{"kind":"export"}`, "--priority", "9")
	runCLI(t, dir, "send", "-q", "jobs", "--data", `{"kind":"import"}`, "--priority", "1")

	out := runCLI(t, dir, "peek", "-q", "jobs", "--filter", `json.kind == "export"`)
	if !strings.Contains(out, "export") || strings.Contains(out, "import") {
		t.Fatalf("filtered peek output: %s", out)
	}

	if _, err := runCLIErr(dir, "peek", "-q", "jobs", "--filter", "nonsense ==="); err == nil {
		t.Fatal("bad filter succeeded")
	}
}

func TestPurgeReportsCount(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, dir, "queues", "create", "--name", "orders")
	runCLI(t, dir, "send", "-q", "orders", "--data", "a", "--data", "b")

	out := runCLI(t, dir, "queues", "purge", "--name", "orders", "--confirm")
	if !strings.Contains(out, "purged: 2") {
		t.Fatalf("purge output: %s", out)
	}
}

func TestSweepAndStats(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, dir, "queues", "create", "--name", "orders")
	runCLI(t, dir, "send", "-q", "orders", "--data", "a")

	out := runCLI(t, dir, "sweep")
	if !strings.Contains(out, "orders") {
		t.Fatalf("sweep output: %s", out)
	}

	out = runCLI(t, dir, "stats")
	var stats struct {
		Queues int `json:"queues"`
		Totals struct {
			Available int `json:"available"`
		} `json:"totals"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats output %q: %v", out, err)
	}
	if stats.Queues != 1 || stats.Totals.Available != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestStatePersistsAcrossInvocations(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, dir, "queues", "create", "--name", "orders")
	runCLI(t, dir, "send", "-q", "orders", "--data", "durable")

	// A completely separate invocation sees the message.
	out := runCLI(t, dir, "receive", "-q", "orders")
	if !strings.Contains(out, "durable") {
		t.Fatalf("receive output: %s", out)
	}
}

func TestUnknownStorageBackend(t *testing.T) {
	root := NewRoot()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"queues", "list", "--storage", "bogus", "--data-dir", t.TempDir()})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatal("unknown backend succeeded")
	}
}

func TestSendDelayRejectedOnFifo(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, dir, "queues", "create", "--name", "orders")

	if _, err := runCLIErr(dir, "send", "-q", "orders", "--data", "x", "--delay", "1m"); err == nil {
		t.Fatal("delayed send on fifo succeeded")
	}
}
