package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppend_WritesTodaysPartition(t *testing.T) {
	home := t.TempDir()
	log, err := Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	ev := New("cycle_complete")
	ev.Context = &Context{TaskID: "U-20260731000000"}
	if err := log.Append(ev); err != nil {
		t.Fatalf("Append: %v", err)
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(home, "logs", "events", date+".jsonl")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read partition: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var got Event
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventType != "cycle_complete" {
		t.Fatalf("expected event_type cycle_complete, got %q", got.EventType)
	}
	if got.Context == nil || got.Context.TaskID != "U-20260731000000" {
		t.Fatalf("expected task_id propagated, got %+v", got.Context)
	}
	if got.Level != "info" {
		t.Fatalf("expected level=info to be written on every event, got %q", got.Level)
	}
}

func TestAppend_MultipleEventsShareOnePartition(t *testing.T) {
	home := t.TempDir()
	log, err := Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	for i := 0; i < 3; i++ {
		if err := log.Append(New("idle")); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(home, "logs", "events", date+".jsonl")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read partition: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
}

func TestAppend_ConcurrentWritersDoNotCorrupt(t *testing.T) {
	home := t.TempDir()
	log, err := Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			_ = log.Append(New("concurrent_test"))
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(home, "logs", "events", date+".jsonl")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read partition: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 10 {
		t.Fatalf("expected 10 lines, got %d", len(lines))
	}
	for _, line := range lines {
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("corrupted line %q: %v", line, err)
		}
	}
}
