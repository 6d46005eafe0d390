package ctxassembler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, home string, rel string, content string) {
	t.Helper()
	path := filepath.Join(home, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestAssemble_OrdersByPriority(t *testing.T) {
	home := t.TempDir()
	writeFile(t, home, "boot/identity.md", "I am the agent.")
	writeFile(t, home, "memory/working.md", "working notes")
	writeFile(t, home, "memory/long_term.md", "long term notes")
	writeFile(t, home, "memory/beliefs.md", "belief: sky is blue")

	a := New(home, 6000)
	out := a.Assemble("do the thing")

	idIdx := strings.Index(out, "## identity")
	taskIdx := strings.Index(out, "## current_task")
	workIdx := strings.Index(out, "## working_memory")
	ltIdx := strings.Index(out, "## long_term_memory")
	beliefIdx := strings.Index(out, "## beliefs")

	if idIdx < 0 || taskIdx < 0 || workIdx < 0 || ltIdx < 0 || beliefIdx < 0 {
		t.Fatalf("expected all sections present, got: %s", out)
	}
	if !(idIdx < taskIdx && taskIdx < workIdx && workIdx < ltIdx && ltIdx < beliefIdx) {
		t.Fatalf("expected priority order identity < task < working < long_term < beliefs, got: %s", out)
	}
}

func TestAssemble_MissingFilesAreSkipped(t *testing.T) {
	home := t.TempDir()
	a := New(home, 6000)
	out := a.Assemble("")
	if out != "" {
		t.Fatalf("expected empty assembly with no files present, got %q", out)
	}
}

func TestAssemble_MustHaveTruncatedWhenOverBudget(t *testing.T) {
	home := t.TempDir()
	writeFile(t, home, "boot/identity.md", strings.Repeat("x", 40000))

	a := New(home, 10)
	out := a.Assemble("")
	if !strings.Contains(out, "[truncated]") {
		t.Fatalf("expected must-have item to be truncated, got %q", out)
	}
	if !strings.Contains(out, "## identity") {
		t.Fatalf("expected identity section to still appear, got %q", out)
	}
}

func TestAssemble_OptionalDroppedSilentlyWhenOverBudget(t *testing.T) {
	home := t.TempDir()
	writeFile(t, home, "boot/identity.md", strings.Repeat("a", 20))
	writeFile(t, home, "memory/working.md", strings.Repeat("b", 40000))

	a := New(home, 10)
	out := a.Assemble("")
	if strings.Contains(out, "working_memory") {
		t.Fatalf("expected optional item to be dropped, got %q", out)
	}
}

func TestIdentityHash_EmptyWhenFileAbsent(t *testing.T) {
	a := New(t.TempDir(), 6000)
	if got := a.IdentityHash(); got != "" {
		t.Fatalf("expected empty hash for absent file, got %q", got)
	}
}

func TestIdentityHash_StableAndChangesWithContent(t *testing.T) {
	home := t.TempDir()
	writeFile(t, home, "boot/identity.md", "v1")
	a := New(home, 6000)
	h1 := a.IdentityHash()
	h2 := a.IdentityHash()
	if h1 == "" || h1 != h2 {
		t.Fatalf("expected stable non-empty hash, got %q vs %q", h1, h2)
	}

	writeFile(t, home, "boot/identity.md", "v2")
	h3 := a.IdentityHash()
	if h3 == h1 {
		t.Fatalf("expected hash to change when identity content changes")
	}
}

func TestInvariantsHash_EmptyWhenFileAbsent(t *testing.T) {
	a := New(t.TempDir(), 6000)
	if got := a.InvariantsHash(); got != "" {
		t.Fatalf("expected empty hash for absent file, got %q", got)
	}
}

func TestEstimateTokens_CeilDivision(t *testing.T) {
	if got := EstimateTokens("abcde"); got != 2 {
		t.Fatalf("expected ceil(5/4)=2, got %d", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("expected 0 tokens for empty string, got %d", got)
	}
}
