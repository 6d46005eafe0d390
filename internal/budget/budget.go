// Package budget enforces the hard, per-task and per-day limits that
// force the Agent Loop to pause or block rather than run away: these
// are not suggestions the LM can talk its way around, they are checked
// by the runtime on every cycle boundary.
package budget

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Limits are the configured hard constraints, one-to-one with the
// config file's budgets/curiosity sections.
type Limits struct {
	MaxIterationsPerTask      int
	MaxConsecutiveFailures    int
	MaxActionsWithoutProgress int
	MaxActiveTasks            int
	MaxPendingTasks           int
	MaxTaskDurationMinutes    int
	MaxCuriosityTasksPerDay   int
	MaxCuriosityDepth         int
	MinCuriosityValueThreshold float64
	CuriosityEnabled          bool
}

// counters are the runtime-tracked values, persisted to
// runtime/budgets.json between ticks.
type counters struct {
	Iterations           int       `json:"iterations"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ActionsWithoutProgress int     `json:"actions_without_progress"`
	TaskStartedAt        time.Time `json:"task_started_at"`
	CuriosityTasksToday  int       `json:"curiosity_tasks_today"`
	CuriosityDate        string    `json:"curiosity_date"` // YYYY-MM-DD, host local
}

// persistedState is the on-disk shape of runtime/budgets.json.
type persistedState struct {
	Timestamp time.Time `json:"timestamp"`
	Counters  counters  `json:"counters"`
}

// Ledger tracks and enforces Limits against the runtime counters,
// persisting them to agentHome/runtime/budgets.json after every cycle.
type Ledger struct {
	limits Limits
	path   string
	now    func() time.Time

	c counters
}

// New returns a Ledger rooted at agentHome/runtime/budgets.json.
func New(agentHome string, limits Limits) *Ledger {
	return &Ledger{
		limits: limits,
		path:   filepath.Join(agentHome, "runtime", "budgets.json"),
		now:    time.Now,
	}
}

// Record updates the per-task counters after one cycle: iterations
// always increments; consecutive_failures increments on failure and
// resets to zero on success; actions_without_progress increments when
// no progress was made and resets to zero otherwise.
func (l *Ledger) Record(madeProgress, hadFailure bool) {
	l.c.Iterations++
	if hadFailure {
		l.c.ConsecutiveFailures++
	} else {
		l.c.ConsecutiveFailures = 0
	}
	if madeProgress {
		l.c.ActionsWithoutProgress = 0
	} else {
		l.c.ActionsWithoutProgress++
	}
}

// CanContinue reports whether the current task may run another cycle,
// and if not, a specific human-readable reason matching the literal
// wording the spec's end-to-end scenarios expect.
func (l *Ledger) CanContinue() (bool, string) {
	if l.c.Iterations >= l.limits.MaxIterationsPerTask {
		return false, fmt.Sprintf("Reached maximum iterations (%d) for this task", l.limits.MaxIterationsPerTask)
	}
	if l.c.ConsecutiveFailures >= l.limits.MaxConsecutiveFailures {
		return false, fmt.Sprintf("Too many consecutive failures (%d)", l.c.ConsecutiveFailures)
	}
	if l.c.ActionsWithoutProgress >= l.limits.MaxActionsWithoutProgress {
		return false, fmt.Sprintf("No progress for %d consecutive actions", l.c.ActionsWithoutProgress)
	}
	if !l.c.TaskStartedAt.IsZero() {
		elapsed := l.now().Sub(l.c.TaskStartedAt)
		if elapsed.Minutes() > float64(l.limits.MaxTaskDurationMinutes) {
			return false, fmt.Sprintf("Task exceeded time limit (%d minutes)", l.limits.MaxTaskDurationMinutes)
		}
	}
	return true, ""
}

// CanCreateTask enforces the global pending/active queue caps.
func (l *Ledger) CanCreateTask(pendingN, activeN int) (bool, string) {
	if pendingN >= l.limits.MaxPendingTasks {
		return false, fmt.Sprintf("Too many pending tasks (%d/%d)", pendingN, l.limits.MaxPendingTasks)
	}
	if activeN >= l.limits.MaxActiveTasks {
		return false, fmt.Sprintf("Too many active tasks (%d/%d)", activeN, l.limits.MaxActiveTasks)
	}
	return true, ""
}

// CanCreateCuriosity enforces the curiosity-specific depth and day
// budgets. depth is the proposed child's curiosity_depth (parent + 1).
func (l *Ledger) CanCreateCuriosity(depth int) (bool, string) {
	if !l.limits.CuriosityEnabled {
		return false, "Curiosity is disabled"
	}
	if depth >= l.limits.MaxCuriosityDepth {
		return false, fmt.Sprintf("Curiosity depth limit reached (%d/%d)", depth, l.limits.MaxCuriosityDepth)
	}
	l.rollDayIfNeeded()
	if l.c.CuriosityTasksToday >= l.limits.MaxCuriosityTasksPerDay {
		return false, fmt.Sprintf("Daily curiosity budget exhausted (%d/%d)", l.c.CuriosityTasksToday, l.limits.MaxCuriosityTasksPerDay)
	}
	return true, ""
}

// ResetForTask zeroes the per-task counters and stamps task_started_at,
// called when the Agent Loop activates a new task.
func (l *Ledger) ResetForTask() {
	l.c.Iterations = 0
	l.c.ConsecutiveFailures = 0
	l.c.ActionsWithoutProgress = 0
	l.c.TaskStartedAt = l.now()
}

// RecordCuriosity rolls the day counter if the stored date differs from
// today, then increments it.
func (l *Ledger) RecordCuriosity() {
	l.rollDayIfNeeded()
	l.c.CuriosityTasksToday++
}

func (l *Ledger) rollDayIfNeeded() {
	today := l.now().Format("2006-01-02")
	if l.c.CuriosityDate != today {
		l.c.CuriosityDate = today
		l.c.CuriosityTasksToday = 0
	}
}

// Iterations, ConsecutiveFailures, ActionsWithoutProgress, and
// CuriosityToday expose the current counters for logging/status display.
func (l *Ledger) Iterations() int             { return l.c.Iterations }
func (l *Ledger) ConsecutiveFailures() int    { return l.c.ConsecutiveFailures }
func (l *Ledger) ActionsWithoutProgress() int { return l.c.ActionsWithoutProgress }
func (l *Ledger) CuriosityToday() int         { return l.c.CuriosityTasksToday }

// Save persists the counters to runtime/budgets.json.
func (l *Ledger) Save() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	state := persistedState{Timestamp: l.now(), Counters: l.c}
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// Load restores counters from runtime/budgets.json. Absence or
// corruption is non-fatal: the ledger starts from zero, matching the
// source's try/except around load_state.
func (l *Ledger) Load() {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	var state persistedState
	if err := json.Unmarshal(b, &state); err != nil {
		return
	}
	l.c = state.Counters
}
