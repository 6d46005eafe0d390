// Package config loads and validates the runtime's YAML configuration,
// resolving "${VAR}" references against the host environment and filling
// in defaults for every section named in the external interface.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/basket/clawd/internal/errs"
	"github.com/basket/clawd/internal/otel"
)

// LLMConfig configures the single LM provider this process talks to.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	Timeout  int    `yaml:"timeout,omitempty"` // seconds, default 90
}

// ContextConfig bounds the Context Assembler's output.
type ContextConfig struct {
	MaxTokens       int `yaml:"max_tokens"`
	ResponseReserve int `yaml:"response_reserve"`
}

// ExecutionConfig bounds the Executor.
type ExecutionConfig struct {
	CommandTimeout int `yaml:"command_timeout"` // seconds
	MaxRetries     int `yaml:"max_retries"`
}

// BudgetsConfig maps 1:1 to the Budget Ledger's configured limits.
type BudgetsConfig struct {
	MaxIterationsPerTask      int `yaml:"max_iterations_per_task"`
	MaxConsecutiveFailures    int `yaml:"max_consecutive_failures"`
	MaxActionsWithoutProgress int `yaml:"max_actions_without_progress"`
	MaxActiveTasks            int `yaml:"max_active_tasks"`
	MaxPendingTasks           int `yaml:"max_pending_tasks"`
	MaxTaskDurationMinutes    int `yaml:"max_task_duration_minutes"`
}

// CuriosityConfig maps 1:1 to the Curiosity Admitter's configured limits.
type CuriosityConfig struct {
	Enabled              bool    `yaml:"enabled"`
	MaxProposalsPerCycle int     `yaml:"max_proposals_per_cycle"`
	MinValueThreshold    float64 `yaml:"min_value_threshold"`
	MaxTasksPerDay       int     `yaml:"max_tasks_per_day"`
	MaxDepth             int     `yaml:"max_depth"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// MaintenanceConfig configures the cron-driven maintenance scheduler.
type MaintenanceConfig struct {
	DailySummaryCron string `yaml:"daily_summary_cron,omitempty"`
	SnapshotCron     string `yaml:"snapshot_cron,omitempty"`
	PromoteCron      string `yaml:"promote_cron,omitempty"`
}

// Config is the fully resolved runtime configuration.
type Config struct {
	AgentHome   string            `yaml:"agent_home"`
	LLM         LLMConfig         `yaml:"llm"`
	Context     ContextConfig     `yaml:"context"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Budgets     BudgetsConfig     `yaml:"budgets"`
	Curiosity   CuriosityConfig   `yaml:"curiosity"`
	Logging     LoggingConfig     `yaml:"logging"`
	Maintenance MaintenanceConfig `yaml:"maintenance,omitempty"`
	Otel        otel.Config       `yaml:"otel,omitempty"`
}

// Default returns the configuration defaults applied before a config.yaml
// is merged in, mirroring the limits the source runtime ships with.
func Default(agentHome string) Config {
	return Config{
		AgentHome: agentHome,
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-3-5-sonnet-latest",
			Timeout:  90,
		},
		Context: ContextConfig{
			MaxTokens:       8000,
			ResponseReserve: 1000,
		},
		Execution: ExecutionConfig{
			CommandTimeout: 30,
			MaxRetries:     0,
		},
		Budgets: BudgetsConfig{
			MaxIterationsPerTask:      20,
			MaxConsecutiveFailures:    3,
			MaxActionsWithoutProgress: 5,
			MaxActiveTasks:            10,
			MaxPendingTasks:           50,
			MaxTaskDurationMinutes:    30,
		},
		Curiosity: CuriosityConfig{
			Enabled:              true,
			MaxProposalsPerCycle: 2,
			MinValueThreshold:    0.6,
			MaxTasksPerDay:       5,
			MaxDepth:             2,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Otel: otel.Config{
			Enabled:  false,
			Exporter: "none",
		},
	}
}

// HomeDir resolves the agent-home directory: $CLAW_HOME if set, else
// ~/.clawd.
func HomeDir() string {
	if v := os.Getenv("CLAW_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clawd"
	}
	return filepath.Join(home, ".clawd")
}

// ConfigPath returns the path to the config.yaml under the given home.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml from homeDir, applies ${VAR} substitution,
// merges over defaults, and validates the result. A missing file is not
// an error: defaults are returned as-is so first-run genesis can proceed.
func Load(homeDir string) (*Config, error) {
	cfg := Default(homeDir)

	path := ConfigPath(homeDir)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			normalize(&cfg)
			return &cfg, nil
		}
		return nil, errs.ConfigInvalid("reading config file", err)
	}

	expanded := expandEnv(string(raw))

	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errs.ConfigInvalid("parsing config file", err)
	}
	cfg.AgentHome = homeDir

	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv substitutes "${VAR}" references against the host environment.
// Missing variables substitute to the empty string, never an error,
// matching the external-interface contract in full.
func expandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func normalize(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = 90
	}
	if cfg.Context.MaxTokens <= 0 {
		cfg.Context.MaxTokens = 8000
	}
	if cfg.Execution.CommandTimeout <= 0 {
		cfg.Execution.CommandTimeout = 30
	}
	if cfg.Budgets.MaxIterationsPerTask <= 0 {
		cfg.Budgets.MaxIterationsPerTask = 20
	}
	if cfg.Budgets.MaxConsecutiveFailures <= 0 {
		cfg.Budgets.MaxConsecutiveFailures = 3
	}
	if cfg.Budgets.MaxActionsWithoutProgress <= 0 {
		cfg.Budgets.MaxActionsWithoutProgress = 5
	}
	if cfg.Budgets.MaxActiveTasks <= 0 {
		cfg.Budgets.MaxActiveTasks = 10
	}
	if cfg.Budgets.MaxPendingTasks <= 0 {
		cfg.Budgets.MaxPendingTasks = 50
	}
	if cfg.Budgets.MaxTaskDurationMinutes <= 0 {
		cfg.Budgets.MaxTaskDurationMinutes = 30
	}
	if cfg.Curiosity.MaxProposalsPerCycle <= 0 {
		cfg.Curiosity.MaxProposalsPerCycle = 2
	}
	if cfg.Curiosity.MaxTasksPerDay <= 0 {
		cfg.Curiosity.MaxTasksPerDay = 5
	}
	if cfg.Curiosity.MaxDepth <= 0 {
		cfg.Curiosity.MaxDepth = 2
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func validate(cfg *Config) error {
	if cfg.AgentHome == "" {
		return errs.ConfigInvalid("agent_home must not be empty", nil)
	}
	if cfg.Context.ResponseReserve >= cfg.Context.MaxTokens {
		return errs.ConfigInvalid(
			fmt.Sprintf("context.response_reserve (%d) must be less than context.max_tokens (%d)",
				cfg.Context.ResponseReserve, cfg.Context.MaxTokens), nil)
	}
	if cfg.Curiosity.MinValueThreshold < 0 || cfg.Curiosity.MinValueThreshold > 1 {
		return errs.ConfigInvalid("curiosity.min_value_threshold must be in [0,1]", nil)
	}
	return nil
}

// Fingerprint returns a stable hash of the normalized configuration, used
// to detect config drift between runs (logged, not enforced).
func (c *Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%+v", *c)
	return fmt.Sprintf("%016x", h.Sum64())
}
