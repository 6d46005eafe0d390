package cycleengine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/basket/clawd/internal/cyclestate"
	"github.com/basket/clawd/internal/task"
)

func formatTaskSpec(t task.Task) string {
	criteria := "- Complete the task successfully"
	if len(t.SuccessCriteria) > 0 {
		var b strings.Builder
		for _, c := range t.SuccessCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		criteria = strings.TrimRight(b.String(), "\n")
	}
	return fmt.Sprintf("Task ID: %s\nPriority: %s\nDescription: %s\n\nSuccess Criteria:\n%s\n",
		t.TaskID, t.Priority, t.Description, criteria)
}

func formatTaskContext(t task.Task, label string) string {
	if t.Context == "" {
		return ""
	}
	return fmt.Sprintf("\n## %s\n%s", label, t.Context)
}

// buildHistorySummary renders the last 5 cycles into the compact
// narrative both PLAN and REFLECT prompts reuse, so the model sees
// what it already tried before choosing again.
func buildHistorySummary(history []cyclestate.State) string {
	if len(history) == 0 {
		return "No previous cycles. This is a fresh start."
	}
	start := 0
	if len(history) > 5 {
		start = len(history) - 5
	}
	var blocks []string
	for _, cycle := range history[start:] {
		actionType := "unknown"
		if cycle.Action != nil {
			actionType = string(cycle.Action.Type)
		}
		var lines []string
		lines = append(lines, fmt.Sprintf("### Cycle %d: %s", cycle.CycleID, actionType))
		if cycle.Action != nil {
			switch cycle.Action.Type {
			case cyclestate.ActionExecuteCommand:
				lines = append(lines, fmt.Sprintf("Command: `%s`", cycle.Action.Command))
			case cyclestate.ActionReadFile:
				lines = append(lines, fmt.Sprintf("File: `%s`", cycle.Action.Path))
			case cyclestate.ActionWriteFile:
				lines = append(lines, fmt.Sprintf("Wrote to: `%s`", cycle.Action.Path))
			case cyclestate.ActionAskUser:
				lines = append(lines, fmt.Sprintf("Question: %s", cycle.Action.Question))
			}
			if cycle.Action.Reasoning != "" {
				lines = append(lines, fmt.Sprintf("Reasoning: %s", cycle.Action.Reasoning))
			}
		}
		if cycle.Observation != nil {
			mark := "✗"
			if cycle.Observation.Success {
				mark = "✓"
			}
			lines = append(lines, fmt.Sprintf("Result: %s", mark))
			if cycle.Observation.Output != "" {
				out := cycle.Observation.Output
				if len(out) > 500 {
					out = out[:500] + "...(truncated)"
				}
				lines = append(lines, fmt.Sprintf("Output: %s", out))
			}
			if cycle.Observation.Error != "" {
				lines = append(lines, fmt.Sprintf("Error: %s", cycle.Observation.Error))
			}
		}
		if cycle.Reflection != nil {
			if cycle.Reflection.WhatLearned != "" {
				lines = append(lines, fmt.Sprintf("Learned: %s", cycle.Reflection.WhatLearned))
			}
			if !cycle.Reflection.ProgressMade {
				lines = append(lines, "(No progress this cycle)")
			}
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

const planPromptTemplate = `You are an AUTONOMOUS agent planning the next step to complete a task.

## Current Task
%s%s

## Previous Cycles (Recent History)
%s

## Current Iteration
This is cycle %d of maximum %d.

## Instructions
1. Review the task, any previous progress, and learnings from history
2. Choose EXACTLY ONE action to take next
3. Be specific and direct
4. Work AUTONOMOUSLY - make reasonable assumptions and proceed

## Available Actions (in order of preference)
- execute_command: Run a shell command (PREFERRED - just do it)
- read_file: Read a file's contents (PREFERRED - gather info yourself)
- write_file: Create or update a file (PREFERRED - just make changes)
- complete_task: Declare the task complete
- block_task: Declare the task blocked (only if truly impossible)
- ask_user: Ask the user for clarification (LAST RESORT ONLY - use sparingly)

## CRITICAL: Autonomy Principle
- You should RARELY need to ask the user anything
- If something is unclear, make a reasonable assumption and proceed
- Only ask_user when you genuinely cannot proceed without user input
- Prefer exploration and experimentation over questions
- If you've asked a question before, the answer should be in the history - DO NOT ask again

## Response Format (JSON only)
{
    "goal": "What you're trying to achieve",
    "approach": "Brief approach (1-2 sentences)",
    "next_action": {
        "action_type": "execute_command|read_file|write_file|ask_user|complete_task|block_task",
        "payload": {
            "command": "...",
            "path": "...",
            "content": "...",
            "question": "...",
            "summary": "..."
        },
        "reasoning": "Why this action"
    },
    "remaining_steps": ["step 1", "step 2"],
    "confidence": 0.8
}

Respond with ONLY the JSON, no other text.`

func formatPlanPrompt(t task.Task, history []cyclestate.State, cycleNum, maxCycles int) string {
	return fmt.Sprintf(planPromptTemplate,
		formatTaskSpec(t), formatTaskContext(t, "Additional Context / User Replies"),
		buildHistorySummary(history), cycleNum, maxCycles)
}

const reflectPromptTemplate = `You just executed an action. Reflect on the result.

## Task
%s%s

## Action Taken
Type: %s
Payload: %s
Reasoning: %s

## Result
Success: %t
Output: %s
Error: %s

## Previous Cycles
%s

## Required Analysis
Analyze what happened and respond in JSON format:

{
    "progress_made": true/false,
    "what_learned": "What new information did you learn?",
    "plan_still_valid": true/false,
    "stuck_indicators": ["any signs you're stuck"],
    "confidence": 0.0-1.0,
    "next_step_suggestion": "What should happen next",
    "proposed_tasks": []
}

IMPORTANT:
- Be honest about whether progress was made
- Flag any stuck patterns you notice
- Keep working AUTONOMOUSLY - don't suggest asking users for help
- proposed_tasks should almost always be empty unless there's truly valuable follow-up work

Respond with ONLY the JSON, no other text.`

func formatReflectPrompt(t task.Task, action cyclestate.Action, obs cyclestate.Observation, history []cyclestate.State) string {
	payload, _ := json.Marshal(actionPayloadMap(action))
	output := obs.Output
	if output == "" {
		output = "(no output)"
	} else if len(output) > 1000 {
		output = output[:1000]
	}
	errMsg := obs.Error
	if errMsg == "" {
		errMsg = "(no error)"
	}
	return fmt.Sprintf(reflectPromptTemplate,
		t.Description, formatTaskContext(t, "User Replies / Context"),
		action.Type, string(payload), action.Reasoning,
		obs.Success, output, errMsg,
		buildHistorySummary(history))
}

const decidePromptTemplate = `Based on your reflection, decide how to proceed.

## Reflection
Progress made: %t
What learned: %s
Plan still valid: %t
Stuck indicators: %v
Confidence: %.2f

## Budget Status
Cycles used: %d/%d
Failures: %d/%d
No-progress streak: %d/%d

## Decision Options (in order of preference)
- CONTINUE: More work is needed, proceed to next cycle (DEFAULT - keep working)
- COMPLETE: The task goal has been achieved
- BLOCKED: Cannot proceed - truly impossible without external resources
- ASK_USER: LAST RESORT - only when you absolutely cannot make any progress

## CRITICAL: Autonomy Principle
You are an AUTONOMOUS agent. Your default should be CONTINUE unless the task is done.
- ASK_USER should be extremely rare - only when genuinely stuck with no alternatives
- If you're unsure, make a reasonable assumption and CONTINUE
- Prefer experimentation over asking

Respond with ONLY one word: CONTINUE, COMPLETE, BLOCKED, or ASK_USER`

func formatDecidePrompt(r cyclestate.Reflection, budget BudgetStatus) string {
	return fmt.Sprintf(decidePromptTemplate,
		r.ProgressMade, r.WhatLearned, r.PlanStillValid, r.StuckIndicators, r.Confidence,
		budget.CyclesUsed, budget.MaxCycles, budget.Failures, budget.MaxFailures,
		budget.NoProgress, budget.MaxNoProgress)
}

// actionPayloadMap renders an Action's payload as the nested map shape
// the prompt templates display, independent of cyclestate.Action's flat
// tagged-variant representation.
func actionPayloadMap(a cyclestate.Action) map[string]string {
	m := map[string]string{}
	switch a.Type {
	case cyclestate.ActionExecuteCommand:
		m["command"] = a.Command
	case cyclestate.ActionReadFile:
		m["path"] = a.Path
	case cyclestate.ActionWriteFile:
		m["path"] = a.Path
		m["content"] = a.Content
	case cyclestate.ActionAskUser:
		m["question"] = a.Question
	case cyclestate.ActionCompleteTask, cyclestate.ActionBlockTask:
		m["summary"] = a.Summary
	}
	return m
}
