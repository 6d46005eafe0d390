// Package agentloop implements the Agent Loop: the tick()/run(interval)
// orchestration that ties the Task Store, Budget Ledger, Cycle Log,
// Cycle Engine, and Curiosity Admitter together into the runnable agent.
// Each tick commits exactly one PLAN/ACT/REFLECT/DECIDE cycle, matching
// the source runtime's one-cycle-per-tick contract.
package agentloop

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/basket/clawd/internal/budget"
	"github.com/basket/clawd/internal/bus"
	"github.com/basket/clawd/internal/curiosity"
	"github.com/basket/clawd/internal/cycleengine"
	"github.com/basket/clawd/internal/cyclestate"
	"github.com/basket/clawd/internal/eventlog"
	"github.com/basket/clawd/internal/reflection"
	"github.com/basket/clawd/internal/task"
)

// TickResult mirrors the source's per-tick outcome.
type TickResult struct {
	Success               bool
	TaskProcessed         string
	Message               string
	CyclesRun             int
	Decision              string
	CuriosityTasksCreated int
}

// Loop wires every built component into the runnable tick/run algorithm.
// The Agent Loop, not the Cycle Engine, owns every durable-store commit.
type Loop struct {
	Store     *task.Store
	Budget    *budget.Ledger
	CycleLog  *cyclestate.Log
	Engine    *cycleengine.Engine
	Curiosity *curiosity.Admitter
	Events    *eventlog.Log
	Bus       *bus.Bus
	Logger    *slog.Logger

	// MaxCyclesPerTask renders into the PLAN prompt's "maximum N" and
	// should equal the Budget Ledger's configured MaxIterationsPerTask.
	MaxCyclesPerTask int
	MaxFailures      int
	MaxNoProgress    int

	// PreFlight, if set, is consulted at the start of every tick; a
	// false result aborts the tick without touching the Task Store.
	PreFlight func() (bool, string)

	running bool
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Tick executes a single agent tick: activate the next pending task if
// none is active, then run exactly one reasoning cycle against it.
func (l *Loop) Tick(ctx context.Context) TickResult {
	if l.PreFlight != nil {
		if ok, msg := l.PreFlight(); !ok {
			return TickResult{Success: false, Message: fmt.Sprintf("Pre-flight checks failed: %s", msg)}
		}
	}

	active, err := l.Store.Active()
	if err != nil {
		return TickResult{Success: false, Message: fmt.Sprintf("reading active task: %v", err)}
	}

	if active == nil {
		pending, err := l.Store.Pending()
		if err != nil {
			return TickResult{Success: false, Message: fmt.Sprintf("reading pending tasks: %v", err)}
		}
		if len(pending) == 0 {
			return TickResult{Success: true, Message: "No pending tasks"}
		}
		next := pending[0]
		if err := l.Store.Activate(next); err != nil {
			return TickResult{Success: false, Message: fmt.Sprintf("activating task %s: %v", next.TaskID, err)}
		}
		l.Budget.ResetForTask()
		if err := l.emit("task_activated", next.TaskID, "Task moved to active"); err != nil {
			return TickResult{Success: false, TaskProcessed: next.TaskID, Message: fmt.Sprintf("failed to append event log: %v", err)}
		}
		l.Bus.Publish(bus.TopicTaskActivated, bus.TaskActivatedEvent{TaskID: next.TaskID, Priority: string(next.Priority)})
		active = &next
	}

	return l.processCycle(ctx, *active)
}

func (l *Loop) processCycle(ctx context.Context, tsk task.Task) TickResult {
	if ok, reason := l.Budget.CanContinue(); !ok {
		return l.pauseWithDecision(tsk, "budget_exceeded", reason)
	}

	history, err := l.CycleLog.Load(tsk.TaskID)
	if err != nil {
		l.logger().Error("loading cycle history", "task_id", tsk.TaskID, "error", err)
	}

	if stuck := reflection.DetectStuck(history); stuck.Stuck {
		return l.pauseWithDecision(tsk, "stuck", stuck.Reason)
	}

	cycleID, err := l.CycleLog.NextCycleID(tsk.TaskID)
	if err != nil {
		cycleID = len(history) + 1
	}

	start := time.Now()
	result := l.Engine.Run(ctx, cycleengine.Params{
		Task:      tsk,
		CycleID:   cycleID,
		MaxCycles: l.MaxCyclesPerTask,
		History:   history,
		Budget: cycleengine.BudgetStatus{
			CyclesUsed:    l.Budget.Iterations(),
			MaxCycles:     l.MaxCyclesPerTask,
			Failures:      l.Budget.ConsecutiveFailures(),
			MaxFailures:   l.MaxFailures,
			NoProgress:    l.Budget.ActionsWithoutProgress(),
			MaxNoProgress: l.MaxNoProgress,
		},
	})
	duration := time.Since(start)

	// Per spec: "No cycle may be partially committed: either the Cycle
	// Log append and Budget Ledger save both succeed, or the cycle is
	// discarded." A failure in either is a data-integrity failure that
	// terminates the tick; the task is left active and uncommitted so a
	// later tick can retry rather than silently losing the cycle.
	if err := l.CycleLog.Append(result.State); err != nil {
		l.logger().Error("appending cycle history", "task_id", tsk.TaskID, "error", err)
		return TickResult{Success: false, TaskProcessed: tsk.TaskID, Message: fmt.Sprintf("failed to append cycle history: %v", err)}
	}

	progressMade := result.State.Reflection != nil && result.State.Reflection.ProgressMade
	hadFailure := result.State.Observation != nil && !result.State.Observation.Success
	l.Budget.Record(progressMade, hadFailure)
	if err := l.Budget.Save(); err != nil {
		l.logger().Error("saving budget ledger", "error", err)
		return TickResult{Success: false, TaskProcessed: tsk.TaskID, Message: fmt.Sprintf("failed to save budget ledger: %v", err)}
	}

	decision := result.Decision
	summary := result.Summary

	if err := l.emit("cycle_complete", tsk.TaskID, string(decision)); err != nil {
		return TickResult{Success: false, TaskProcessed: tsk.TaskID, Message: fmt.Sprintf("failed to append event log: %v", err)}
	}
	l.Bus.Publish(bus.TopicCycleComplete, bus.CycleCompleteEvent{
		TaskID:       tsk.TaskID,
		CycleID:      cycleID,
		Decision:     string(decision),
		ProgressMade: progressMade,
		DurationMs:   duration.Milliseconds(),
	})

	curiosityCreated := 0
	if len(result.ProposedTasks) > 0 && l.Curiosity != nil {
		admitted, err := l.Curiosity.Consider(tsk.TaskID, tsk.CuriosityDepth, result.ProposedTasks)
		if err != nil {
			l.logger().Error("considering curiosity proposals", "task_id", tsk.TaskID, "error", err)
		}
		curiosityCreated = len(admitted)
		for _, child := range admitted {
			l.Bus.Publish(bus.TopicCuriosityAdmitted, bus.CuriosityDecisionEvent{
				ParentTaskID: tsk.TaskID,
				Description:  child.Description,
				Reason:       "admitted",
			})
		}
	}

	if decision == cyclestate.DecisionContinue {
		return TickResult{
			Success:               true,
			TaskProcessed:         tsk.TaskID,
			Message:               "Task in progress",
			CyclesRun:             cycleID,
			Decision:              string(decision),
			CuriosityTasksCreated: curiosityCreated,
		}
	}

	res := l.finish(tsk, decision, summary)
	res.CyclesRun = cycleID
	res.CuriosityTasksCreated = curiosityCreated
	return res
}

func (l *Loop) finish(tsk task.Task, decision cyclestate.Decision, summary string) TickResult {
	var err error
	var topic string
	switch decision {
	case cyclestate.DecisionComplete:
		err = l.Store.Complete(tsk, summary, "", nil, "")
		topic = bus.TopicTaskCompleted
	case cyclestate.DecisionAskUser, cyclestate.DecisionBudgetExceeded:
		err = l.Store.Pause(tsk, summary)
		topic = bus.TopicTaskPaused
	default: // Blocked
		err = l.Store.Block(tsk, summary)
		topic = bus.TopicTaskBlocked
	}
	if err != nil {
		l.logger().Error("committing task terminal state", "task_id", tsk.TaskID, "decision", decision, "error", err)
		return TickResult{Success: false, TaskProcessed: tsk.TaskID, Message: fmt.Sprintf("failed to commit %s: %v", decision, err), Decision: string(decision)}
	}
	if err := l.emit("task_"+string(decision), tsk.TaskID, summary); err != nil {
		return TickResult{Success: false, TaskProcessed: tsk.TaskID, Message: fmt.Sprintf("failed to append event log: %v", err), Decision: string(decision)}
	}
	l.Bus.Publish(topic, bus.TaskTerminalEvent{TaskID: tsk.TaskID, Summary: summary})
	return TickResult{Success: true, TaskProcessed: tsk.TaskID, Message: fmt.Sprintf("%s: %s", decision, summary), Decision: string(decision)}
}

// pauseWithDecision pauses the active task before any cycle is run,
// used for the budget-exceeded and stuck checks at the top of the
// cycle loop (spec: "On either negative verdict -> pause the task...
// and return TickResult{decision: budget_exceeded|stuck}"). Neither
// check produces a committed CycleState.
func (l *Loop) pauseWithDecision(tsk task.Task, decision, reason string) TickResult {
	if err := l.Store.Pause(tsk, reason); err != nil {
		l.logger().Error("pausing task", "task_id", tsk.TaskID, "decision", decision, "error", err)
		return TickResult{Success: false, TaskProcessed: tsk.TaskID, Message: fmt.Sprintf("failed to pause: %v", err), Decision: decision}
	}
	if err := l.emit("task_paused", tsk.TaskID, reason); err != nil {
		return TickResult{Success: false, TaskProcessed: tsk.TaskID, Message: fmt.Sprintf("failed to append event log: %v", err), Decision: decision}
	}
	l.Bus.Publish(bus.TopicTaskPaused, bus.TaskTerminalEvent{TaskID: tsk.TaskID, Summary: reason})
	return TickResult{Success: true, TaskProcessed: tsk.TaskID, Message: fmt.Sprintf("%s: %s", decision, reason), Decision: decision}
}

// emit appends one event to the Event Log. A failure here is a
// data-integrity failure, not a log-and-continue condition: per spec
// §7 it must terminate the tick, so every call site surfaces the error
// to its TickResult rather than swallowing it.
func (l *Loop) emit(eventType, taskID, message string) error {
	if l.Events == nil {
		return nil
	}
	ev := eventlog.New(eventType)
	if taskID != "" {
		ev.Context = &eventlog.Context{TaskID: taskID}
	}
	ev.Outcomes = &eventlog.Outcomes{Observations: message}
	if err := l.Events.Append(ev); err != nil {
		l.logger().Error("appending event log", "error", err)
		return err
	}
	return nil
}

// Run executes ticks continuously until ctx is cancelled or a SIGINT/
// SIGTERM arrives, sleeping interval between idle ticks and continuing
// immediately whenever a tick processed a task.
func (l *Loop) Run(ctx context.Context, interval time.Duration) {
	l.running = true
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := l.emit("startup", "", "Agent started in continuous mode"); err != nil {
		l.logger().Error("appending startup event", "error", err)
	}
	defer func() {
		if err := l.emit("shutdown", "", "Agent stopped"); err != nil {
			l.logger().Error("appending shutdown event", "error", err)
		}
	}()

	for l.running {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := l.Tick(ctx)
		if result.TaskProcessed != "" {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// Stop requests the run loop exit after its current tick.
func (l *Loop) Stop() { l.running = false }
