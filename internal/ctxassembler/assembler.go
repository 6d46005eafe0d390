// Package ctxassembler builds the bounded context string handed to the LM
// Client on each PLAN/ACT call: identity and the active task are must-have,
// working memory is high priority, long-term memory and beliefs are
// medium priority. Items are laid out priority-first and packed into a
// token budget; must-have items are truncated to fit, optional items that
// don't fit are dropped silently.
package ctxassembler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Tier controls truncate-vs-drop behavior when an item doesn't fit.
type Tier string

const (
	// TierMustHave items are truncated (never dropped) to fit the budget.
	TierMustHave Tier = "must_have"
	// TierOptional items are dropped silently if they don't fit.
	TierOptional Tier = "optional"
)

// charsPerToken mirrors the corpus-wide ceil(chars/4) estimator.
const charsPerToken = 4

// EstimateTokens returns a rough ceil(chars/4) token estimate.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Item is one piece of context considered for inclusion.
type Item struct {
	Name     string
	Content  string
	Tier     Tier
	Priority int // lower sorts first
}

// Assembler reads identity/memory/belief snippets from an agent home
// directory and packs them into a token-bounded context string.
type Assembler struct {
	homeDir   string
	maxTokens int
}

// New returns an Assembler rooted at homeDir with the given token budget.
func New(homeDir string, maxTokens int) *Assembler {
	if maxTokens <= 0 {
		maxTokens = 6000
	}
	return &Assembler{homeDir: homeDir, maxTokens: maxTokens}
}

func (a *Assembler) readSafe(rel ...string) string {
	path := filepath.Join(append([]string{a.homeDir}, rel...)...)
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

// identityItems returns the always-included identity snippet, if present.
func (a *Assembler) identityItems() []Item {
	var items []Item
	if content := a.readSafe("boot", "identity.md"); content != "" {
		items = append(items, Item{
			Name:     "identity",
			Content:  content,
			Tier:     TierMustHave,
			Priority: 1,
		})
	}
	return items
}

// workingMemoryItems returns high-priority working memory.
func (a *Assembler) workingMemoryItems() []Item {
	var items []Item
	if content := a.readSafe("memory", "working.md"); content != "" {
		items = append(items, Item{
			Name:     "working_memory",
			Content:  content,
			Tier:     TierOptional,
			Priority: 6,
		})
	}
	return items
}

// longTermItems returns medium-priority long-term memory and beliefs.
func (a *Assembler) longTermItems() []Item {
	var items []Item
	if content := a.readSafe("memory", "long_term.md"); content != "" {
		items = append(items, Item{
			Name:     "long_term_memory",
			Content:  content,
			Tier:     TierOptional,
			Priority: 9,
		})
	}
	if content := a.readSafe("memory", "beliefs.md"); content != "" {
		items = append(items, Item{
			Name:     "beliefs",
			Content:  content,
			Tier:     TierOptional,
			Priority: 10,
		})
	}
	return items
}

// Assemble lays out identity, the current task spec, working memory, and
// long-term memory/beliefs (in that priority order), then packs them into
// the assembler's token budget. Additional caller-supplied items (e.g. a
// curiosity proposal under review) are merged in by priority too.
func (a *Assembler) Assemble(taskSpec string, additional ...Item) string {
	var all []Item
	all = append(all, a.identityItems()...)

	if taskSpec != "" {
		all = append(all, Item{
			Name:     "current_task",
			Content:  taskSpec,
			Tier:     TierMustHave,
			Priority: 4,
		})
	}

	all = append(all, a.workingMemoryItems()...)
	all = append(all, a.longTermItems()...)
	all = append(all, additional...)

	sort.SliceStable(all, func(i, j int) bool { return all[i].Priority < all[j].Priority })

	var assembled []string
	totalTokens := 0

	for _, item := range all {
		itemTokens := EstimateTokens(item.Content)
		if totalTokens+itemTokens > a.maxTokens {
			if item.Tier == TierMustHave {
				available := a.maxTokens - totalTokens
				if available > 100 {
					cut := available * charsPerToken
					if cut > len(item.Content) {
						cut = len(item.Content)
					}
					assembled = append(assembled, fmt.Sprintf("## %s\n%s\n[truncated]", item.Name, item.Content[:cut]))
					totalTokens += available
				}
				continue
			}
			// Optional item that doesn't fit: dropped silently.
			continue
		}
		assembled = append(assembled, fmt.Sprintf("## %s\n%s", item.Name, item.Content))
		totalTokens += itemTokens
	}

	return strings.Join(assembled, "\n\n---\n\n")
}

// IdentityHash returns the SHA-256 hex digest of boot/identity.md, or ""
// if the file is absent. Used by the Agent Loop to detect identity drift
// between cycles.
func (a *Assembler) IdentityHash() string {
	return hashFile(a.readSafe("boot", "identity.md"))
}

// InvariantsHash returns the SHA-256 hex digest of boot/invariants.md, or
// "" if the file is absent.
func (a *Assembler) InvariantsHash() string {
	return hashFile(a.readSafe("boot", "invariants.md"))
}

func hashFile(content string) string {
	if content == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
