// Package cycleengine implements one PLAN→ACT→OBSERVE→REFLECT→DECIDE
// reasoning cycle. It is a pure function of (task, history, budget
// status) plus the LM and Executor collaborators: it never touches the
// Task Store, Cycle Log, or Budget Ledger directly, leaving those
// commits to the Agent Loop that calls it.
package cycleengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/basket/clawd/internal/cyclestate"
	"github.com/basket/clawd/internal/errs"
	"github.com/basket/clawd/internal/executor"
	"github.com/basket/clawd/internal/lmclient"
	"github.com/basket/clawd/internal/task"
)

// readFileCap bounds how much of a file's content an ACT read_file
// action returns, matching the source's truncate-to-5000-bytes limit.
const readFileCap = 5000

// BudgetStatus is the subset of the Budget Ledger's counters the DECIDE
// phase's prompt renders, passed in by the Agent Loop.
type BudgetStatus struct {
	CyclesUsed    int
	MaxCycles     int
	Failures      int
	MaxFailures   int
	NoProgress    int
	MaxNoProgress int
}

// Params bundles everything one cycle needs.
type Params struct {
	Task      task.Task
	CycleID   int
	MaxCycles int
	History   []cyclestate.State
	Budget    BudgetStatus
}

// Engine runs cycles against a configured LM Client and Executor.
type Engine struct {
	client           lmclient.Client
	exec             executor.Executor
	planValidator    *lmclient.Validator
	reflectValidator *lmclient.Validator
	maxTokens        int
	commandTimeout   time.Duration
}

// New builds an Engine, compiling both response schemas once.
func New(client lmclient.Client, exec executor.Executor, maxTokens int, commandTimeout time.Duration) (*Engine, error) {
	planV, err := lmclient.NewValidator([]byte(planSchemaJSON), 2)
	if err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}
	reflectV, err := lmclient.NewValidator([]byte(reflectSchemaJSON), 2)
	if err != nil {
		return nil, fmt.Errorf("compile reflect schema: %w", err)
	}
	return &Engine{
		client:           client,
		exec:             exec,
		planValidator:    planV,
		reflectValidator: reflectV,
		maxTokens:        maxTokens,
		commandTimeout:   commandTimeout,
	}, nil
}

// Run executes exactly one cycle and returns its terminal Result. It
// never returns an error: an LM-transport failure degrades to a
// CONTINUE-decision Result carrying the failure in State.Observation,
// matching the source's catch-everything posture at the cycle boundary
// and the spec's "terminate the cycle, continue the loop" contract for
// LM errors — the Agent Loop's consecutive-failure budget, not this
// function, decides when repeated failures force a pause.
func (e *Engine) Run(ctx context.Context, p Params) cyclestate.Result {
	state := cyclestate.State{
		CycleID:   p.CycleID,
		TaskID:    p.Task.TaskID,
		Phase:     cyclestate.PhasePlan,
		Timestamp: time.Now().UTC(),
	}

	plan, lmErr := e.plan(ctx, p)
	if lmErr != nil {
		return e.failedCycle(state, lmErr)
	}
	state.Plan = &plan
	action := plan.NextAction
	state.Action = &action

	switch action.Type {
	case cyclestate.ActionCompleteTask:
		state.Decision = cyclestate.DecisionComplete
		summary := action.Summary
		if summary == "" {
			summary = "Task completed"
		}
		return cyclestate.Result{State: state, Decision: cyclestate.DecisionComplete, Summary: summary}
	case cyclestate.ActionBlockTask:
		state.Decision = cyclestate.DecisionBlocked
		summary := action.Summary
		if summary == "" {
			summary = "Task blocked"
		}
		return cyclestate.Result{State: state, Decision: cyclestate.DecisionBlocked, Summary: summary}
	case cyclestate.ActionAskUser:
		state.Decision = cyclestate.DecisionAskUser
		summary := action.Question
		if summary == "" {
			summary = "Need clarification"
		}
		return cyclestate.Result{State: state, Decision: cyclestate.DecisionAskUser, Summary: summary}
	}

	state.Phase = cyclestate.PhaseAct
	obs := e.act(ctx, p.Task, action)
	state.Observation = &obs

	state.Phase = cyclestate.PhaseReflect
	reflection, lmErr := e.reflect(ctx, p, action, obs)
	if lmErr != nil {
		return e.failedCycle(state, lmErr)
	}
	state.Reflection = &reflection

	state.Phase = cyclestate.PhaseDecide
	decision := e.decide(ctx, p, reflection)
	state.Decision = decision

	return cyclestate.Result{
		State:         state,
		Decision:      decision,
		ProposedTasks: reflection.ProposedTasks,
		Summary:       reflection.WhatLearned,
	}
}

// failedCycle produces a non-terminal result for a genuine LM
// transport failure (as opposed to a validation failure, which
// degrades to a fallback plan/reflection via isValidationFailure
// instead of reaching here). Per spec §7, an LM transport failure
// aborts the cycle but continues the loop: it surfaces as a failed
// Observation with Decision: CONTINUE, leaving the Agent Loop's
// consecutive-failure counter — not this single cycle — to decide
// when three such failures in a row trip the budget.
func (e *Engine) failedCycle(state cyclestate.State, err error) cyclestate.Result {
	state.Observation = &cyclestate.Observation{Success: false, Error: err.Error()}
	state.Decision = cyclestate.DecisionContinue
	return cyclestate.Result{
		State:    state,
		Decision: cyclestate.DecisionContinue,
		Summary:  fmt.Sprintf("LM unavailable, continuing: %v", err),
	}
}

type planWire struct {
	Goal       string `json:"goal"`
	Approach   string `json:"approach"`
	NextAction struct {
		ActionType string            `json:"action_type"`
		Payload    map[string]string `json:"payload"`
		Reasoning  string            `json:"reasoning"`
	} `json:"next_action"`
	RemainingSteps []string `json:"remaining_steps"`
	Confidence     float64  `json:"confidence"`
}

// plan runs the PLAN phase. Transport failures (the LM itself is
// unreachable) propagate as an error so the cycle fails visibly;
// a response that never validates even after retries degrades to a
// safe fallback plan rather than failing the whole cycle, matching the
// source's "parse failure still returns a minimal valid structure"
// posture.
func (e *Engine) plan(ctx context.Context, p Params) (cyclestate.Plan, error) {
	prompt := formatPlanPrompt(p.Task, p.History, p.CycleID, p.MaxCycles)
	messages := []lmclient.Message{{Role: lmclient.RoleUser, Content: prompt}}

	result, _, err := lmclient.ChatAndValidate(ctx, e.client, e.planValidator, messages, e.maxTokens)
	if err != nil {
		if isValidationFailure(err) {
			return fallbackPlan(), nil
		}
		return cyclestate.Plan{}, err
	}

	var wire planWire
	if err := json.Unmarshal([]byte(result.JSON), &wire); err != nil {
		return fallbackPlan(), nil
	}

	actionType := cyclestate.ActionType(wire.NextAction.ActionType)
	if actionType == "" {
		actionType = cyclestate.ActionExecuteCommand
	}
	action := cyclestate.Action{
		Type:      actionType,
		Reasoning: wire.NextAction.Reasoning,
		Command:   wire.NextAction.Payload["command"],
		Path:      wire.NextAction.Payload["path"],
		Content:   wire.NextAction.Payload["content"],
		Question:  wire.NextAction.Payload["question"],
		Summary:   wire.NextAction.Payload["summary"],
		Notes:     wire.NextAction.Payload["reasoning"],
	}

	goal := wire.Goal
	if goal == "" {
		goal = "Complete the task"
	}
	confidence := wire.Confidence
	if confidence == 0 {
		confidence = 0.7
	}

	return cyclestate.Plan{
		Goal:           goal,
		Approach:       wire.Approach,
		NextAction:     action,
		RemainingSteps: wire.RemainingSteps,
		Confidence:     confidence,
	}, nil
}

// fallbackPlan is the safe minimal plan used when the LM's response
// never becomes parseable JSON: keep the task alive with an inert,
// observable action rather than aborting the cycle outright.
func fallbackPlan() cyclestate.Plan {
	return cyclestate.Plan{
		Goal:     "Continue task",
		Approach: "Proceed with available information",
		NextAction: cyclestate.Action{
			Type:      cyclestate.ActionExecuteCommand,
			Command:   "echo 'Parse error, continuing'",
			Reasoning: "JSON parse failed, using fallback",
		},
		Confidence: 0.5,
	}
}

// act dispatches the planned action. Only execute_command, read_file,
// write_file, and internal_reasoning produce observable side effects;
// the short-circuit actions (complete/block/ask_user) never reach here.
func (e *Engine) act(ctx context.Context, t task.Task, action cyclestate.Action) cyclestate.Observation {
	start := time.Now()

	switch action.Type {
	case cyclestate.ActionExecuteCommand:
		cmd := action.Command
		if cmd == "" {
			cmd = "echo 'No command'"
		}
		res, err := e.exec.Execute(ctx, "bash", []string{"-c", cmd}, "", e.commandTimeout)
		if err != nil {
			return cyclestate.Observation{
				Success:    false,
				Error:      err.Error(),
				DurationMs: time.Since(start).Milliseconds(),
			}
		}
		obs := cyclestate.Observation{
			Success:    res.ExitCode == 0,
			Output:     res.Stdout,
			DurationMs: res.DurationMs,
		}
		if res.ExitCode != 0 {
			obs.Error = res.Stderr
		}
		return obs

	case cyclestate.ActionReadFile:
		content, err := os.ReadFile(action.Path)
		if err != nil {
			return cyclestate.Observation{
				Success:    false,
				Error:      fmt.Sprintf("File not found: %s", action.Path),
				DurationMs: time.Since(start).Milliseconds(),
			}
		}
		out := string(content)
		if len(out) > readFileCap {
			out = out[:readFileCap]
		}
		return cyclestate.Observation{
			Success:    true,
			Output:     out,
			DurationMs: time.Since(start).Milliseconds(),
		}

	case cyclestate.ActionWriteFile:
		if err := os.MkdirAll(filepath.Dir(action.Path), 0o755); err != nil {
			return cyclestate.Observation{Success: false, Error: err.Error(), DurationMs: time.Since(start).Milliseconds()}
		}
		if err := os.WriteFile(action.Path, []byte(action.Content), 0o644); err != nil {
			return cyclestate.Observation{Success: false, Error: err.Error(), DurationMs: time.Since(start).Milliseconds()}
		}
		return cyclestate.Observation{
			Success:       true,
			Output:        fmt.Sprintf("Wrote %d bytes to %s", len(action.Content), action.Path),
			FilesModified: []string{action.Path},
			DurationMs:    time.Since(start).Milliseconds(),
		}

	case cyclestate.ActionInternalReasoning:
		notes := action.Notes
		if notes == "" {
			notes = "Internal reasoning step"
		}
		return cyclestate.Observation{Success: true, Output: notes, DurationMs: time.Since(start).Milliseconds()}

	default:
		return cyclestate.Observation{
			Success:    false,
			Error:      fmt.Sprintf("Unknown action type: %s", action.Type),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}
}

type reflectWire struct {
	ProgressMade       bool     `json:"progress_made"`
	WhatLearned        string   `json:"what_learned"`
	PlanStillValid     bool     `json:"plan_still_valid"`
	StuckIndicators    []string `json:"stuck_indicators"`
	Confidence         float64  `json:"confidence"`
	NextStepSuggestion string   `json:"next_step_suggestion"`
	ProposedTasks      []struct {
		Description    string  `json:"description"`
		Justification  string  `json:"justification"`
		Priority       string  `json:"priority"`
		EstimatedValue float64 `json:"estimated_value"`
		Category       string  `json:"category"`
	} `json:"proposed_tasks"`
}

func (e *Engine) reflect(ctx context.Context, p Params, action cyclestate.Action, obs cyclestate.Observation) (cyclestate.Reflection, error) {
	prompt := formatReflectPrompt(p.Task, action, obs, p.History)
	messages := []lmclient.Message{{Role: lmclient.RoleUser, Content: prompt}}

	result, _, err := lmclient.ChatAndValidate(ctx, e.client, e.reflectValidator, messages, e.maxTokens)
	if err != nil {
		if isValidationFailure(err) {
			return fallbackReflection(), nil
		}
		return cyclestate.Reflection{}, err
	}

	var wire reflectWire
	if err := json.Unmarshal([]byte(result.JSON), &wire); err != nil {
		return fallbackReflection(), nil
	}

	var proposed []cyclestate.CuriosityProposal
	for _, pt := range wire.ProposedTasks {
		proposed = append(proposed, cyclestate.CuriosityProposal{
			Description:    pt.Description,
			Justification:  pt.Justification,
			Priority:       pt.Priority,
			EstimatedValue: pt.EstimatedValue,
			Category:       pt.Category,
		})
	}

	confidence := wire.Confidence
	if confidence == 0 {
		confidence = 0.5
	}

	return cyclestate.Reflection{
		ProgressMade:       wire.ProgressMade,
		WhatLearned:        wire.WhatLearned,
		PlanStillValid:     wire.PlanStillValid,
		ProposedTasks:      proposed,
		StuckIndicators:    wire.StuckIndicators,
		Confidence:         confidence,
		NextStepSuggestion: wire.NextStepSuggestion,
	}, nil
}

func fallbackReflection() cyclestate.Reflection {
	return cyclestate.Reflection{
		ProgressMade:   false,
		WhatLearned:    "Response parsing failed",
		PlanStillValid: true,
		Confidence:     0.5,
	}
}

// decide runs the DECIDE phase. DECIDE is intentionally a single
// tolerant token rather than structured JSON: the source parses it by
// substring search on the upper-cased response, and we keep that exact
// tolerant contract rather than forcing a schema onto a one-word answer.
func (e *Engine) decide(ctx context.Context, p Params, reflection cyclestate.Reflection) cyclestate.Decision {
	prompt := formatDecidePrompt(reflection, p.Budget)
	messages := []lmclient.Message{{Role: lmclient.RoleUser, Content: prompt}}

	resp, err := e.client.Chat(ctx, messages, 16)
	if err != nil {
		return cyclestate.DecisionContinue
	}

	text := strings.ToUpper(strings.TrimSpace(resp.Content))
	switch {
	case strings.Contains(text, "COMPLETE"):
		return cyclestate.DecisionComplete
	case strings.Contains(text, "BLOCKED"):
		return cyclestate.DecisionBlocked
	case strings.Contains(text, "ASK_USER"):
		return cyclestate.DecisionAskUser
	default:
		return cyclestate.DecisionContinue
	}
}

// isValidationFailure reports whether err is ChatAndValidate's own
// "exhausted retries without a schema-valid response" error, as opposed
// to a transport-level failure reaching the provider at all. Only the
// former is safe to paper over with a fallback plan/reflection.
func isValidationFailure(err error) bool {
	var domainErr *errs.Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind == errs.KindLMBadResponse
	}
	return false
}
