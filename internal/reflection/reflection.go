// Package reflection analyzes recent cycle history to detect stuck
// patterns, classify progress trend, and filter curiosity proposals
// before they reach the Budget Ledger.
package reflection

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/basket/clawd/internal/cyclestate"
)

// StuckWindow is the default trailing-cycle window (W) the analyzer
// looks at; individual checks use their own sub-window of it:
// repeated-action and repeated-error look at the last 3, no-progress
// looks at all of W, oscillation looks at the last 4.
const StuckWindow = 5

const (
	repeatedActionWindow = 3
	repeatedErrorWindow  = 3
	oscillationWindow    = 4
)

// errorNormalizePattern collapses incidental differences (line numbers,
// paths, case) so two occurrences of "the same" error compare equal.
var (
	digitsPattern = regexp.MustCompile(`\d+`)
	pathPattern   = regexp.MustCompile(`(?:/[\w.\-]+)+`)
)

func normalizeError(s string) string {
	s = strings.ToLower(s)
	s = pathPattern.ReplaceAllString(s, "/PATH")
	s = digitsPattern.ReplaceAllString(s, "N")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// StuckCheck is the outcome of one stuck-pattern check.
type StuckCheck struct {
	Stuck  bool
	Reason string
}

// DetectStuck runs all stuck-pattern checks against the trailing cycle
// history (most recent last) and returns the first one that fires, or
// a non-stuck result if none do.
func DetectStuck(history []cyclestate.State) StuckCheck {
	if c := checkRepeatedAction(history); c.Stuck {
		return c
	}
	if c := checkRepeatedError(history); c.Stuck {
		return c
	}
	if c := checkNoProgress(history); c.Stuck {
		return c
	}
	if c := checkOscillation(history); c.Stuck {
		return c
	}
	return StuckCheck{}
}

func window(history []cyclestate.State, n int) []cyclestate.State {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// checkRepeatedAction flags when the last 3 cycles all chose the
// identical action (type + payload).
func checkRepeatedAction(history []cyclestate.State) StuckCheck {
	w := window(history, repeatedActionWindow)
	if len(w) < repeatedActionWindow {
		return StuckCheck{}
	}
	first := actionSignature(w[0])
	if first == "" {
		return StuckCheck{}
	}
	for _, s := range w[1:] {
		if actionSignature(s) != first {
			return StuckCheck{}
		}
	}
	return StuckCheck{Stuck: true, Reason: fmt.Sprintf("Repeating same action: %s", first)}
}

func actionSignature(s cyclestate.State) string {
	if s.Action == nil {
		return ""
	}
	return string(s.Action.Type) + "|" + s.Action.FormatPayload()
}

// checkRepeatedError flags when the last 3 cycles all failed with the
// same normalized error message.
func checkRepeatedError(history []cyclestate.State) StuckCheck {
	w := window(history, repeatedErrorWindow)
	if len(w) < repeatedErrorWindow {
		return StuckCheck{}
	}
	var first string
	for i, s := range w {
		if s.Observation == nil || s.Observation.Success || s.Observation.Error == "" {
			return StuckCheck{}
		}
		norm := normalizeError(s.Observation.Error)
		if i == 0 {
			first = norm
			continue
		}
		if norm != first {
			return StuckCheck{}
		}
	}
	return StuckCheck{Stuck: true, Reason: fmt.Sprintf("Same error repeating: %s", first)}
}

// checkNoProgress flags when at least StuckWindow-1 of the last
// StuckWindow cycles' reflections reported no progress.
func checkNoProgress(history []cyclestate.State) StuckCheck {
	w := window(history, StuckWindow)
	if len(w) < StuckWindow {
		return StuckCheck{}
	}
	noProgress := 0
	for _, s := range w {
		if s.Reflection == nil || !s.Reflection.ProgressMade {
			noProgress++
		}
	}
	if noProgress >= StuckWindow-1 {
		return StuckCheck{Stuck: true, Reason: fmt.Sprintf("No progress for %d of the last %d cycles", noProgress, StuckWindow)}
	}
	return StuckCheck{}
}

// checkOscillation flags an A-B-A-B pattern across the last
// oscillationWindow cycles' actions.
func checkOscillation(history []cyclestate.State) StuckCheck {
	w := window(history, oscillationWindow)
	if len(w) < oscillationWindow {
		return StuckCheck{}
	}
	a, b := actionSignature(w[0]), actionSignature(w[1])
	if a == "" || b == "" || a == b {
		return StuckCheck{}
	}
	if actionSignature(w[2]) == a && actionSignature(w[3]) == b {
		return StuckCheck{Stuck: true, Reason: "Oscillating between two actions"}
	}
	return StuckCheck{}
}

// Trend classifies recent progress direction from the trailing window
// of reflections.
type Trend string

const (
	TrendImproving   Trend = "improving"
	TrendStagnating  Trend = "stagnating"
	TrendDeclining   Trend = "declining"
)

// AnalyzeTrend looks at the last 3 reflections' progress_made flags.
// Two or more with progress is improving, exactly one is stagnating,
// none is declining.
func AnalyzeTrend(history []cyclestate.State) Trend {
	w := window(history, 3)
	recentProgress := 0
	for _, s := range w {
		if s.Reflection != nil && s.Reflection.ProgressMade {
			recentProgress++
		}
	}
	switch {
	case recentProgress >= 2:
		return TrendImproving
	case recentProgress == 1:
		return TrendStagnating
	default:
		return TrendDeclining
	}
}

// AllowedCuriosityCategories are the only categories the filter admits;
// anything else is rejected outright regardless of value.
var AllowedCuriosityCategories = map[string]bool{
	"verification":  true,
	"documentation": true,
	"robustness":    true,
	"exploration":   true,
}

// Minimum lengths the curiosity filter requires of a proposal's prose
// fields before it is even considered for budget checks: short enough
// justifications and descriptions are almost always low-effort noise.
const (
	minJustificationLen = 10
	minDescriptionLen   = 20
)

// FilterResult is the outcome of running one proposal through the
// curiosity filter, before budget checks are applied.
type FilterResult struct {
	Admit  bool
	Reason string
}

// FilterProposal applies the category, value-threshold, and length
// gates to a single curiosity proposal. seen holds descriptions of
// proposals already admitted this reflection pass (and, ideally,
// recent history), used for the duplicate check.
func FilterProposal(p cyclestate.CuriosityProposal, minValue float64, seen []string) FilterResult {
	if !AllowedCuriosityCategories[p.Category] {
		return FilterResult{Admit: false, Reason: "invalid_category"}
	}
	if p.EstimatedValue < minValue {
		return FilterResult{Admit: false, Reason: "low_value"}
	}
	if len(p.Justification) < minJustificationLen {
		return FilterResult{Admit: false, Reason: "short_justification"}
	}
	if len(p.Description) < minDescriptionLen {
		return FilterResult{Admit: false, Reason: "short_description"}
	}
	for _, s := range seen {
		if isDuplicate(p.Description, s) {
			return FilterResult{Admit: false, Reason: "duplicate"}
		}
	}
	return FilterResult{Admit: true}
}

// RankedProposal pairs a proposal that survived FilterProposal with its
// position in the original batch, so a caller can still report
// per-proposal decisions in submission order after ranking.
type RankedProposal struct {
	Index    int
	Proposal cyclestate.CuriosityProposal
}

// CapProposals sorts the proposals that survived the filter gates by
// estimated_value descending (a stable sort, so equal-value proposals
// keep their submission order) and splits them at maxProposals: kept
// holds the ones within the per-cycle cap, cut holds the overflow.
// maxProposals <= 0 means no cap; everything is kept.
func CapProposals(survivors []RankedProposal, maxProposals int) (kept, cut []RankedProposal) {
	ranked := make([]RankedProposal, len(survivors))
	copy(ranked, survivors)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Proposal.EstimatedValue > ranked[j].Proposal.EstimatedValue
	})
	if maxProposals <= 0 || len(ranked) <= maxProposals {
		return ranked, nil
	}
	return ranked[:maxProposals], ranked[maxProposals:]
}

// isDuplicate reports whether two proposal descriptions overlap by at
// least 70% of their tokens, the source's near-duplicate heuristic.
func isDuplicate(a, b string) bool {
	wa := tokenSet(a)
	wb := tokenSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return false
	}
	overlap := 0
	for w := range wa {
		if wb[w] {
			overlap++
		}
	}
	smaller := len(wa)
	if len(wb) < smaller {
		smaller = len(wb)
	}
	return float64(overlap)/float64(smaller) >= 0.7
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
