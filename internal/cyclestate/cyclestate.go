// Package cyclestate defines the PLAN/ACT/OBSERVE/REFLECT/DECIDE data
// model and its append-only per-task JSONL persistence.
package cyclestate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Phase names one of the five reasoning phases.
type Phase string

const (
	PhasePlan    Phase = "plan"
	PhaseAct     Phase = "act"
	PhaseObserve Phase = "observe"
	PhaseReflect Phase = "reflect"
	PhaseDecide  Phase = "decide"
)

// ActionType names the single action a Plan may choose.
type ActionType string

const (
	ActionExecuteCommand    ActionType = "execute_command"
	ActionReadFile          ActionType = "read_file"
	ActionWriteFile         ActionType = "write_file"
	ActionAskUser           ActionType = "ask_user"
	ActionInternalReasoning ActionType = "internal_reasoning"
	ActionCompleteTask      ActionType = "complete_task"
	ActionBlockTask         ActionType = "block_task"
)

// Decision is the terminal verdict of one cycle.
type Decision string

const (
	DecisionContinue       Decision = "continue"
	DecisionComplete       Decision = "complete"
	DecisionBlocked        Decision = "blocked"
	DecisionAskUser        Decision = "ask_user"
	DecisionBudgetExceeded Decision = "budget_exceeded"
)

// Action is the exactly-one action chosen during PLAN. Payload is a
// tagged variant, not a free-form map: exactly one of the pointer
// fields matching ActionType is populated. Notes is a small
// forward-compatible open-ended string.
type Action struct {
	Type ActionType `json:"action_type"`

	Command string `json:"command,omitempty"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
	Question string `json:"question,omitempty"`
	Summary string `json:"summary,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Observation is the result of executing the planned Action.
type Observation struct {
	Success       bool     `json:"success"`
	Output        string   `json:"output"`
	Error         string   `json:"error,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
	DurationMs    int64    `json:"duration_ms"`
}

// maxObservationOutputBytes bounds the stored/logged Observation.Output,
// matching the source's truncate-for-storage behavior.
const maxObservationOutputBytes = 2000

// Truncated returns a copy of the Observation with Output capped to
// maxObservationOutputBytes for storage/logging.
func (o Observation) Truncated() Observation {
	out := o
	if len(out.Output) > maxObservationOutputBytes {
		out.Output = out.Output[:maxObservationOutputBytes]
	}
	return out
}

// CuriosityProposal is a candidate child task surfaced during REFLECT.
// Not persisted on its own; it either becomes a Task or is discarded by
// the Curiosity Admitter.
type CuriosityProposal struct {
	Description     string  `json:"description"`
	Justification   string  `json:"justification"`
	Priority        string  `json:"priority"`
	EstimatedValue  float64 `json:"estimated_value"`
	Category        string  `json:"category"`
}

// Reflection is the structured self-assessment produced after ACT.
type Reflection struct {
	ProgressMade       bool                `json:"progress_made"`
	WhatLearned        string              `json:"what_learned"`
	PlanStillValid     bool                `json:"plan_still_valid"`
	ProposedTasks      []CuriosityProposal `json:"proposed_tasks,omitempty"`
	StuckIndicators    []string            `json:"stuck_indicators,omitempty"`
	Confidence         float64             `json:"confidence"`
	NextStepSuggestion string              `json:"next_step_suggestion,omitempty"`
}

// Plan is what the agent intends to do this cycle, with exactly one
// next action.
type Plan struct {
	Goal           string   `json:"goal"`
	Approach       string   `json:"approach"`
	NextAction     Action   `json:"next_action"`
	RemainingSteps []string `json:"remaining_steps,omitempty"`
	Confidence     float64  `json:"confidence"`
}

// State is the complete, immutable record of one reasoning cycle.
type State struct {
	CycleID     int          `json:"cycle_id"`
	TaskID      string       `json:"task_id"`
	Phase       Phase        `json:"phase"`
	Plan        *Plan        `json:"plan,omitempty"`
	Action      *Action      `json:"action,omitempty"`
	Observation *Observation `json:"observation,omitempty"`
	Reflection  *Reflection  `json:"reflection,omitempty"`
	Decision    Decision     `json:"decision"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Result bundles the cycle's terminal state with what the Agent Loop
// still needs to commit: the decision, any curiosity proposals to run
// through the admitter, and a short human-readable summary.
type Result struct {
	State         State
	Decision      Decision
	ProposedTasks []CuriosityProposal
	Summary       string
}

// Log is the append-only per-task cycle history,
// tasks/history/<task_id>.jsonl.
type Log struct {
	dir    string
	logger *slog.Logger
}

// NewLog returns a Log rooted at agentHome/tasks/history.
func NewLog(agentHome string, logger *slog.Logger) (*Log, error) {
	dir := filepath.Join(agentHome, "tasks", "history")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{dir: dir, logger: logger}, nil
}

func (l *Log) pathFor(taskID string) string {
	return filepath.Join(l.dir, taskID+".jsonl")
}

// Append writes one line to the task's history file. The caller (the
// Agent Loop) is solely responsible for invoking Append; the Cycle
// Engine never touches this log directly.
func (l *Log) Append(state State) error {
	f, err := os.OpenFile(l.pathFor(state.TaskID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := f.Write(b); err != nil {
		return err
	}
	return f.Sync()
}

// Load reads every cycle state for taskID in order. Lines that fail to
// parse are skipped with a warning so forward-compatible field
// additions never break replay.
func (l *Log) Load(taskID string) ([]State, error) {
	f, err := os.Open(l.pathFor(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var states []State
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var s State
		if err := json.Unmarshal(line, &s); err != nil {
			l.logger.Warn("skipping unparseable cycle state", "task_id", taskID, "line", lineNo, "error", err)
			continue
		}
		states = append(states, s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return states, nil
}

// Count returns the number of cycles committed for taskID.
func (l *Log) Count(taskID string) (int, error) {
	states, err := l.Load(taskID)
	if err != nil {
		return 0, err
	}
	return len(states), nil
}

// Last returns the most recent cycle state for taskID, or nil if none.
func (l *Log) Last(taskID string) (*State, error) {
	states, err := l.Load(taskID)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, nil
	}
	return &states[len(states)-1], nil
}

// NextCycleID resumes from count+1, the invariant that lets a killed and
// restarted process continue a task's history without duplicating
// cycles.
func (l *Log) NextCycleID(taskID string) (int, error) {
	n, err := l.Count(taskID)
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

// FormatPayload renders an Action's payload for the LM prompt, matching
// the one-line-per-action-type rendering the source's history summary
// uses.
func (a Action) FormatPayload() string {
	switch a.Type {
	case ActionExecuteCommand:
		return fmt.Sprintf("command: %s", a.Command)
	case ActionReadFile:
		return fmt.Sprintf("path: %s", a.Path)
	case ActionWriteFile:
		return fmt.Sprintf("path: %s", a.Path)
	case ActionAskUser:
		return fmt.Sprintf("question: %s", a.Question)
	case ActionCompleteTask, ActionBlockTask:
		return fmt.Sprintf("summary: %s", a.Summary)
	case ActionInternalReasoning:
		return fmt.Sprintf("notes: %s", a.Notes)
	default:
		return ""
	}
}
