package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/basket/clawd/internal/config"
)

func TestWatcher_DetectsIdentityFileChange(t *testing.T) {
	homeDir := t.TempDir()

	bootDir := filepath.Join(homeDir, "boot")
	if err := os.MkdirAll(bootDir, 0o755); err != nil {
		t.Fatalf("mkdir boot: %v", err)
	}
	identityPath := filepath.Join(bootDir, "identity.md")
	if err := os.WriteFile(identityPath, []byte("initial identity"), 0o644); err != nil {
		t.Fatalf("write initial identity: %v", err)
	}

	w := config.NewWatcher(homeDir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	// Retry the write at short intervals until the watcher produces an
	// event, to absorb platform-specific filesystem notification delay.
	deadline := time.After(3 * time.Second)
	writeTick := time.NewTicker(50 * time.Millisecond)
	defer writeTick.Stop()

	if err := os.WriteFile(identityPath, []byte("updated identity"), 0o644); err != nil {
		t.Fatalf("write updated identity: %v", err)
	}

	for {
		select {
		case ev := <-w.Events():
			if filepath.Base(ev.Path) != "identity.md" {
				t.Fatalf("expected identity.md event, got %s", ev.Path)
			}
			return
		case <-writeTick.C:
			_ = os.WriteFile(identityPath, []byte("updated identity"), 0o644)
		case <-deadline:
			t.Fatalf("timed out waiting for identity.md change event")
		}
	}
}
