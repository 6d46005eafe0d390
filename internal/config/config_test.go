package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/basket/clawd/internal/config"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := config.Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Fatalf("expected default provider anthropic, got %q", cfg.LLM.Provider)
	}
	if cfg.Budgets.MaxIterationsPerTask != 20 {
		t.Fatalf("expected default max_iterations_per_task=20, got %d", cfg.Budgets.MaxIterationsPerTask)
	}
}

func TestLoad_EnvVarSubstitution(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CLAWD_TEST_API_KEY", "sk-test-value")

	yaml := "llm:\n  provider: anthropic\n  api_key: \"${CLAWD_TEST_API_KEY}\"\n"
	if err := os.WriteFile(config.ConfigPath(home), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test-value" {
		t.Fatalf("expected substituted api_key, got %q", cfg.LLM.APIKey)
	}
}

func TestLoad_MissingEnvVarSubstitutesEmpty(t *testing.T) {
	home := t.TempDir()
	os.Unsetenv("CLAWD_TEST_UNSET_VAR")

	yaml := "llm:\n  provider: anthropic\n  api_key: \"${CLAWD_TEST_UNSET_VAR}\"\n"
	if err := os.WriteFile(config.ConfigPath(home), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "" {
		t.Fatalf("expected empty api_key for unset var, got %q", cfg.LLM.APIKey)
	}
}

func TestLoad_InvalidResponseReserveRejected(t *testing.T) {
	home := t.TempDir()
	yaml := "context:\n  max_tokens: 100\n  response_reserve: 500\n"
	if err := os.WriteFile(config.ConfigPath(home), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := config.Load(home); err == nil {
		t.Fatal("expected validation error for response_reserve >= max_tokens")
	}
}

func TestHomeDir_RespectsEnvVar(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "custom-home")
	t.Setenv("CLAW_HOME", dir)
	if got := config.HomeDir(); got != dir {
		t.Fatalf("expected %q, got %q", dir, got)
	}
}

func TestFingerprint_StableAcrossCalls(t *testing.T) {
	cfg := config.Default(t.TempDir())
	a := cfg.Fingerprint()
	b := cfg.Fingerprint()
	if a != b {
		t.Fatalf("expected stable fingerprint, got %q vs %q", a, b)
	}
}
