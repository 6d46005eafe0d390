package task

import (
	"strings"
	"testing"
)

const sampleInbox = `---
task_id: T-1
priority: medium
---
# T-1

Emit the word ok.

## Success criteria
- stdout contains ok
`

func TestParseInboxBasic(t *testing.T) {
	tasks := ParseInbox(sampleInbox)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	tt := tasks[0]
	if tt.TaskID != "T-1" {
		t.Errorf("task_id = %q", tt.TaskID)
	}
	if tt.Priority != PriorityMedium {
		t.Errorf("priority = %q", tt.Priority)
	}
	if !strings.Contains(tt.Description, "Emit the word ok") {
		t.Errorf("description = %q", tt.Description)
	}
	if len(tt.SuccessCriteria) != 1 || tt.SuccessCriteria[0] != "stdout contains ok" {
		t.Errorf("success criteria = %v", tt.SuccessCriteria)
	}
}

func TestParseInboxPriorityOrdering(t *testing.T) {
	content := `---
task_id: T-low
priority: low
---
low task
---
task_id: T-high
priority: high
---
high task
---
task_id: T-medium
priority: medium
---
medium task
`
	tasks := ParseInbox(content)
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	order := []string{tasks[0].TaskID, tasks[1].TaskID, tasks[2].TaskID}
	want := []string{"T-high", "T-medium", "T-low"}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestStoreLifecycle(t *testing.T) {
	home := t.TempDir()
	s, err := New(home)
	if err != nil {
		t.Fatal(err)
	}

	created, err := s.Create("do the thing", OriginUser, PriorityHigh, "", "", []string{"criterion one"})
	if err != nil {
		t.Fatal(err)
	}

	pending, err := s.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending task, got %d", len(pending))
	}

	if err := s.Activate(created); err != nil {
		t.Fatal(err)
	}

	pending, err = s.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected inbox drained after activate, got %d", len(pending))
	}

	active, err := s.Active()
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.TaskID != created.TaskID {
		t.Fatalf("active task mismatch: %+v", active)
	}

	if err := s.Complete(*active, "done", "approach", nil, ""); err != nil {
		t.Fatal(err)
	}

	active, err = s.Active()
	if err != nil {
		t.Fatal(err)
	}
	if active != nil {
		t.Fatalf("expected no active task after complete, got %+v", active)
	}
}

func TestStorePauseReinsertsIntoInbox(t *testing.T) {
	home := t.TempDir()
	s, err := New(home)
	if err != nil {
		t.Fatal(err)
	}
	created, err := s.Create("work", OriginUser, PriorityLow, "", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Activate(created); err != nil {
		t.Fatal(err)
	}
	active, _ := s.Active()
	if err := s.Pause(*active, "waiting on user"); err != nil {
		t.Fatal(err)
	}

	pending, err := s.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected paused task back in inbox, got %d", len(pending))
	}

	active, err = s.Active()
	if err != nil {
		t.Fatal(err)
	}
	if active != nil {
		t.Fatalf("expected no active task after pause")
	}
}

func TestCreateCuriosityDepth(t *testing.T) {
	home := t.TempDir()
	s, err := New(home)
	if err != nil {
		t.Fatal(err)
	}
	child, err := s.CreateCuriosity("verify the output was correct", "confidence was low", PriorityLow, "U-1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if child.Origin != OriginCuriosity {
		t.Errorf("origin = %q", child.Origin)
	}
	if child.CuriosityDepth != 1 {
		t.Errorf("depth = %d", child.CuriosityDepth)
	}
	if child.ParentTaskID != "U-1" {
		t.Errorf("parent = %q", child.ParentTaskID)
	}
}
