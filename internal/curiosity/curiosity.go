// Package curiosity gates self-proposed follow-up tasks surfaced during
// REFLECT: it consults the Budget Ledger and the Reflection Analyzer's
// proposal filter before ever letting one become a real Task, and logs
// every admission and rejection for audit.
package curiosity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/basket/clawd/internal/budget"
	"github.com/basket/clawd/internal/cyclestate"
	"github.com/basket/clawd/internal/reflection"
	"github.com/basket/clawd/internal/task"
)

// Decision records the outcome of evaluating one proposal.
type Decision struct {
	Timestamp   time.Time                   `json:"timestamp"`
	ParentTask  string                       `json:"parent_task"`
	Proposal    cyclestate.CuriosityProposal `json:"proposal"`
	Admitted    bool                         `json:"admitted"`
	Reason      string                       `json:"reason"`
	ChildTaskID string                       `json:"child_task_id,omitempty"`
}

// Admitter wires the Budget Ledger, the proposal filter, and the Task
// Store together, and appends every decision to logs/curiosity.jsonl.
type Admitter struct {
	ledger       *budget.Ledger
	store        *task.Store
	minValue     float64
	maxProposals int
	logPath      string
}

// New returns an Admitter. minValue is the configured curiosity
// min_threshold (config.CuriosityConfig.MinThreshold) and maxProposals
// is the per-cycle cap (config.CuriosityConfig.MaxProposalsPerCycle);
// maxProposals <= 0 admits every proposal that survives the filter.
func New(agentHome string, ledger *budget.Ledger, store *task.Store, minValue float64, maxProposals int) (*Admitter, error) {
	dir := filepath.Join(agentHome, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Admitter{
		ledger:       ledger,
		store:        store,
		minValue:     minValue,
		maxProposals: maxProposals,
		logPath:      filepath.Join(dir, "curiosity.jsonl"),
	}, nil
}

// Consider evaluates one batch of proposals surfaced by a single
// REFLECT phase against the parent task's curiosity depth. Proposals
// are first run through the filter gates (category, value, length,
// duplicate) in submission order, then the survivors are ranked by
// estimated_value descending and capped at maxProposals before any of
// them reach a budget check. Every proposal is logged exactly once, in
// its original submission order, whatever stage rejected it.
func (a *Admitter) Consider(parentTaskID string, parentDepth int, proposals []cyclestate.CuriosityProposal) ([]task.Task, error) {
	var admitted []task.Task
	var seen []string
	filterReason := make([]string, len(proposals))
	var survivors []reflection.RankedProposal

	for i, p := range proposals {
		fr := reflection.FilterProposal(p, a.minValue, seen)
		if !fr.Admit {
			filterReason[i] = fr.Reason
			continue
		}
		seen = append(seen, p.Description)
		survivors = append(survivors, reflection.RankedProposal{Index: i, Proposal: p})
	}

	_, cut := reflection.CapProposals(survivors, a.maxProposals)
	overCap := make(map[int]bool, len(cut))
	for _, c := range cut {
		overCap[c.Index] = true
	}

	for i, p := range proposals {
		if filterReason[i] != "" {
			a.logDecision(Decision{Timestamp: time.Now().UTC(), ParentTask: parentTaskID, Proposal: p, Reason: filterReason[i]})
			continue
		}
		if overCap[i] {
			a.logDecision(Decision{Timestamp: time.Now().UTC(), ParentTask: parentTaskID, Proposal: p, Reason: "over_cycle_cap"})
			continue
		}

		decision := a.evaluateBudget(parentTaskID, parentDepth, p)
		if decision.Admitted {
			child, err := a.store.CreateCuriosity(p.Description, p.Justification, task.Priority(p.Priority), parentTaskID, parentDepth+1)
			if err != nil {
				decision.Admitted = false
				decision.Reason = fmt.Sprintf("store_error: %v", err)
				a.logDecision(decision)
				continue
			}
			a.ledger.RecordCuriosity()
			decision.ChildTaskID = child.TaskID
			admitted = append(admitted, child)
		}
		a.logDecision(decision)
	}
	return admitted, nil
}

// evaluateBudget checks a proposal that has already passed the filter
// gates and the per-cycle cap against the Budget Ledger's depth, daily,
// and queue limits.
func (a *Admitter) evaluateBudget(parentTaskID string, parentDepth int, p cyclestate.CuriosityProposal) Decision {
	d := Decision{
		Timestamp:  time.Now().UTC(),
		ParentTask: parentTaskID,
		Proposal:   p,
	}

	ok, reason := a.ledger.CanCreateCuriosity(parentDepth + 1)
	if !ok {
		d.Reason = budgetReasonCode(reason)
		return d
	}

	pendingN, activeN := 0, 0
	if n, err := a.store.PendingCount(); err == nil {
		pendingN = n
	}
	if n, err := a.store.ActiveCount(); err == nil {
		activeN = n
	}
	if ok, reason := a.ledger.CanCreateTask(pendingN, activeN); !ok {
		d.Reason = budgetReasonCode(reason)
		return d
	}

	d.Admitted = true
	d.Reason = "admitted"
	return d
}

// budgetReasonCode maps a Budget Ledger rejection message to the stable
// reason code used in the curiosity log, so downstream analysis doesn't
// have to parse human prose.
func budgetReasonCode(reason string) string {
	switch {
	case reason == "Curiosity is disabled":
		return "disabled"
	case reason == "":
		return "admitted"
	default:
		switch {
		case strings.Contains(reason, "depth limit"):
			return "depth_exceeded"
		case strings.Contains(reason, "Daily curiosity budget"):
			return "daily_budget_exhausted"
		case strings.Contains(reason, "pending tasks"), strings.Contains(reason, "active tasks"):
			return "queue_full"
		default:
			return "rejected"
		}
	}
}

func (a *Admitter) logDecision(d Decision) {
	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	b, err := json.Marshal(d)
	if err != nil {
		return
	}
	b = append(b, '\n')
	f.Write(b)
}
