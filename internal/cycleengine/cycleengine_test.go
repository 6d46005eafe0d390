package cycleengine

import (
	"context"
	"testing"
	"time"

	"github.com/basket/clawd/internal/cyclestate"
	"github.com/basket/clawd/internal/executor"
	"github.com/basket/clawd/internal/lmclient"
	"github.com/basket/clawd/internal/task"
)

type fakeExecutor struct {
	result executor.Result
	err    error
}

func (f *fakeExecutor) Execute(_ context.Context, _ string, _ []string, _ string, _ time.Duration) (executor.Result, error) {
	return f.result, f.err
}

func jsonResponse(content string) lmclient.Response {
	return lmclient.Response{Content: content}
}

func TestRunCompletesOnCompleteTaskAction(t *testing.T) {
	client := &lmclient.NullProvider{
		Responses: []lmclient.Response{
			jsonResponse(`{"goal":"finish","approach":"done","next_action":{"action_type":"complete_task","payload":{"summary":"all done"},"reasoning":"verified"},"confidence":0.9}`),
		},
	}
	e, err := New(client, &fakeExecutor{}, 1000, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	tsk := task.Task{TaskID: "T-1", Priority: task.PriorityHigh, Description: "do a thing"}
	result := e.Run(context.Background(), Params{Task: tsk, CycleID: 1, MaxCycles: 20})

	if result.Decision != cyclestate.DecisionComplete {
		t.Fatalf("expected complete decision, got %s", result.Decision)
	}
	if result.Summary != "all done" {
		t.Errorf("summary = %q", result.Summary)
	}
}

func TestRunBlocksOnBlockTaskAction(t *testing.T) {
	client := &lmclient.NullProvider{
		Responses: []lmclient.Response{
			jsonResponse(`{"goal":"g","approach":"a","next_action":{"action_type":"block_task","payload":{"summary":"cannot proceed"},"reasoning":"no access"}}`),
		},
	}
	e, err := New(client, &fakeExecutor{}, 1000, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	result := e.Run(context.Background(), Params{Task: task.Task{TaskID: "T-2"}, CycleID: 1, MaxCycles: 20})
	if result.Decision != cyclestate.DecisionBlocked {
		t.Fatalf("expected blocked decision, got %s", result.Decision)
	}
}

func TestRunFullCycleExecutesCommandAndContinues(t *testing.T) {
	client := &lmclient.NullProvider{
		Responses: []lmclient.Response{
			jsonResponse(`{"goal":"g","approach":"a","next_action":{"action_type":"execute_command","payload":{"command":"echo ok"},"reasoning":"check"},"confidence":0.8}`),
			jsonResponse(`{"progress_made":true,"what_learned":"it worked","plan_still_valid":true,"confidence":0.9,"proposed_tasks":[]}`),
			jsonResponse("CONTINUE"),
		},
	}
	exec := &fakeExecutor{result: executor.Result{ExitCode: 0, Stdout: "ok\n", DurationMs: 5}}
	e, err := New(client, exec, 1000, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	result := e.Run(context.Background(), Params{
		Task:      task.Task{TaskID: "T-3", Description: "print ok"},
		CycleID:   1,
		MaxCycles: 20,
		Budget:    BudgetStatus{CyclesUsed: 1, MaxCycles: 20, MaxFailures: 3, MaxNoProgress: 5},
	})

	if result.Decision != cyclestate.DecisionContinue {
		t.Fatalf("expected continue decision, got %s", result.Decision)
	}
	if result.State.Observation == nil || !result.State.Observation.Success {
		t.Fatalf("expected successful observation, got %+v", result.State.Observation)
	}
	if result.State.Reflection == nil || !result.State.Reflection.ProgressMade {
		t.Fatalf("expected progress_made reflection, got %+v", result.State.Reflection)
	}
}

func TestRunFailsOpenOnLMTransportError(t *testing.T) {
	client := &lmclient.NullProvider{Err: context.DeadlineExceeded}
	e, err := New(client, &fakeExecutor{}, 1000, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	result := e.Run(context.Background(), Params{Task: task.Task{TaskID: "T-4"}, CycleID: 1, MaxCycles: 20})
	if result.Decision != cyclestate.DecisionContinue {
		t.Fatalf("expected continue decision on transport failure (budget, not the engine, decides when to pause), got %s", result.Decision)
	}
	if result.State.Observation == nil || result.State.Observation.Success {
		t.Fatalf("expected a failed observation carrying the transport error, got %+v", result.State.Observation)
	}
	if result.State.Reflection != nil {
		t.Fatalf("expected no reflection when PLAN itself fails, got %+v", result.State.Reflection)
	}
}

func TestRunUsesFallbackPlanOnUnparseableResponse(t *testing.T) {
	client := &lmclient.NullProvider{
		Responses: []lmclient.Response{
			jsonResponse("not json at all"),
			jsonResponse("still not json"),
			jsonResponse("definitely not json"),
			jsonResponse(`{"progress_made":false,"what_learned":"none","plan_still_valid":true}`),
			jsonResponse("CONTINUE"),
		},
	}
	exec := &fakeExecutor{result: executor.Result{ExitCode: 0, Stdout: "Parse error, continuing\n"}}
	e, err := New(client, exec, 1000, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	result := e.Run(context.Background(), Params{Task: task.Task{TaskID: "T-5"}, CycleID: 1, MaxCycles: 20})
	if result.State.Plan == nil {
		t.Fatal("expected a fallback plan to be recorded")
	}
	if result.State.Plan.NextAction.Type != cyclestate.ActionExecuteCommand {
		t.Errorf("expected fallback plan to use execute_command, got %s", result.State.Plan.NextAction.Type)
	}
}
