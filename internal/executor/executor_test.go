package executor

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestExecute_Success(t *testing.T) {
	h := New(t.TempDir())
	res, err := h.Execute(context.Background(), "echo ok", nil, "", 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "ok" {
		t.Fatalf("expected stdout 'ok', got %q", res.Stdout)
	}
}

func TestExecute_NonZeroExit(t *testing.T) {
	h := New(t.TempDir())
	res, err := h.Execute(context.Background(), "exit 2", nil, "", 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ExitCode != 2 {
		t.Fatalf("expected exit 2, got %d", res.ExitCode)
	}
}

func TestExecute_MissingExecutable(t *testing.T) {
	h := New(t.TempDir())
	res, err := h.Execute(context.Background(), "definitely-not-a-real-binary-xyz", nil, "", 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ExitCode != 127 {
		t.Fatalf("expected exit 127, got %d", res.ExitCode)
	}
	if res.Stderr != "Command not found" {
		t.Fatalf("expected stderr sentinel, got %q", res.Stderr)
	}
}

func TestExecute_Timeout(t *testing.T) {
	h := New(t.TempDir())
	res, err := h.Execute(context.Background(), "sleep 5", nil, "", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.TimedOut {
		t.Fatal("expected TimedOut=true")
	}
	if res.ExitCode != -1 {
		t.Fatalf("expected exit -1 on timeout, got %d", res.ExitCode)
	}
}

func TestExecute_OutputTruncated(t *testing.T) {
	h := New(t.TempDir())
	res, err := h.Execute(context.Background(), "yes x | head -c 100000", nil, "", 2*time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Stdout) > MaxOutputBytes+len("\n... (truncated)") {
		t.Fatalf("expected bounded output, got %d bytes", len(res.Stdout))
	}
	if !strings.HasSuffix(res.Stdout, "... (truncated)") {
		tail := len(res.Stdout) - 20
		if tail < 0 {
			tail = 0
		}
		t.Fatalf("expected truncation marker, got tail %q", res.Stdout[tail:])
	}
}

func TestExecute_DefaultsScratchCwd(t *testing.T) {
	home := t.TempDir()
	h := New(home)
	res, err := h.Execute(context.Background(), "pwd", nil, "", 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Stdout, "scratch") {
		t.Fatalf("expected cwd under scratch, got %q", res.Stdout)
	}
}
