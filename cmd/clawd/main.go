// Command clawd is the runtime's process entrypoint: it wires the Task
// Store, Budget Ledger, Cycle Log, Cycle Engine, Curiosity Admitter, Event
// Log, and Maintenance Scheduler together and dispatches the external
// interface's subcommand grammar. Argument parsing here is deliberately
// thin — the reasoning cycle underneath is the subject of this runtime,
// not the CLI surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/basket/clawd/internal/agentloop"
	"github.com/basket/clawd/internal/budget"
	"github.com/basket/clawd/internal/bus"
	"github.com/basket/clawd/internal/config"
	"github.com/basket/clawd/internal/cron"
	"github.com/basket/clawd/internal/curiosity"
	"github.com/basket/clawd/internal/cycleengine"
	"github.com/basket/clawd/internal/cyclestate"
	"github.com/basket/clawd/internal/errs"
	"github.com/basket/clawd/internal/eventlog"
	"github.com/basket/clawd/internal/executor"
	"github.com/basket/clawd/internal/healthcheck"
	"github.com/basket/clawd/internal/lmclient"
	"github.com/basket/clawd/internal/logging"
	otelpkg "github.com/basket/clawd/internal/otel"
	"github.com/basket/clawd/internal/task"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [-home DIR] <command> [args]

CORE COMMANDS (implemented by this process):
  tick                       Run a single PLAN/ACT/REFLECT/DECIDE cycle
  run [-interval SECONDS]    Run ticks continuously until interrupted
  health [-json]             Run pre-flight and deep health checks
  init                       Create the agent_home directory skeleton

MAINTENANCE-COLLABORATOR COMMANDS (thin dispatchers; the maintenance
jobs themselves are a collaborator contract this runtime invokes on a
schedule but does not implement):
  summarize [-date YYYY-MM-DD]
  snapshot [-reason TEXT]
  restore <ref>
  maintain
  recall <query> [-days N]
  skill-list | skill-stats | skill-promote | skill-draft
  belief-list | belief-add | belief-contest | belief-purge [-dry-run] | coherence-check
  web [-host HOST] [-port PORT]

FLAGS:
`, os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  CLAW_HOME            Agent home directory (default: ~/.clawd)
  ANTHROPIC_API_KEY, OPENAI_API_KEY, OPENROUTER_API_KEY, GEMINI_API_KEY
                        Provider credentials, used when llm.api_key is unset

EXAMPLES:
  %s init
  %s tick
  %s run -interval 30
  %s health -json
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	homeFlag := flag.String("home", "", "agent home directory (overrides CLAW_HOME)")
	flag.Usage = printUsage
	flag.Parse()

	homeDir := *homeFlag
	if homeDir == "" {
		homeDir = config.HomeDir()
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	cmd := strings.ToLower(strings.TrimSpace(args[0]))
	rest := args[1:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var exitCode int
	switch cmd {
	case "help", "-h", "--help":
		printUsage()
		return
	case "init":
		exitCode = runInit(homeDir)
	case "tick":
		exitCode = runTick(ctx, homeDir)
	case "run":
		exitCode = runRun(ctx, homeDir, rest)
	case "health":
		exitCode = runHealth(ctx, homeDir, rest)
	case "summarize", "snapshot", "restore", "maintain", "recall",
		"skill-list", "skill-stats", "skill-promote", "skill-draft",
		"belief-list", "belief-add", "belief-contest", "belief-purge", "coherence-check",
		"web":
		exitCode = runCollaboratorStub(cmd)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		exitCode = 2
	}
	os.Exit(exitCode)
}

// runCollaboratorStub reports the external interface's contract for
// commands this process invokes (on a schedule, via the Maintenance
// Scheduler) but does not itself implement — daily summaries, VCS-backed
// snapshot/restore, memory promotion, and the belief/skill/web surfaces
// are collaborator responsibilities per spec.
func runCollaboratorStub(cmd string) int {
	fmt.Fprintf(os.Stderr, "%s: not implemented by the core runtime — it is a collaborator contract this process invokes but does not define\n", cmd)
	return 1
}

// buildRuntime assembles every collaborator the Agent Loop needs, in the
// same dependency order the teacher's daemon startup path uses: config,
// then logging, then the durable stores, then the provider clients.
type runtime struct {
	cfg    *config.Config
	logger *slogCloser
	store  *task.Store
	ledger *budget.Ledger
	loop   *agentloop.Loop
	svc    healthcheck.Services

	otelProvider *otelpkg.Provider
	otelMetrics  *otelpkg.Metrics
}

func (rt *runtime) close() {
	if rt.otelProvider != nil {
		rt.otelProvider.Shutdown(context.Background())
	}
	rt.logger.close()
}

type slogCloser struct {
	close func() error
}

func buildRuntime(ctx context.Context, homeDir string) (*runtime, error) {
	cfg, err := config.Load(homeDir)
	if err != nil {
		return nil, err
	}

	logger, closer, err := logging.New(homeDir, cfg.Logging.Level, !cfg.Logging.Console)
	if err != nil {
		return nil, err
	}

	otelProvider, err := otelpkg.Init(ctx, cfg.Otel)
	if err != nil {
		return nil, err
	}
	otelMetrics, err := otelpkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		return nil, err
	}

	store, err := task.New(homeDir)
	if err != nil {
		return nil, err
	}

	ledger := budget.New(homeDir, budget.Limits{
		MaxIterationsPerTask:       cfg.Budgets.MaxIterationsPerTask,
		MaxConsecutiveFailures:     cfg.Budgets.MaxConsecutiveFailures,
		MaxActionsWithoutProgress:  cfg.Budgets.MaxActionsWithoutProgress,
		MaxActiveTasks:             cfg.Budgets.MaxActiveTasks,
		MaxPendingTasks:            cfg.Budgets.MaxPendingTasks,
		MaxTaskDurationMinutes:     cfg.Budgets.MaxTaskDurationMinutes,
		MaxCuriosityTasksPerDay:    cfg.Curiosity.MaxTasksPerDay,
		MaxCuriosityDepth:          cfg.Curiosity.MaxDepth,
		MinCuriosityValueThreshold: cfg.Curiosity.MinValueThreshold,
		CuriosityEnabled:           cfg.Curiosity.Enabled,
	})
	ledger.Load() // crash recovery: resume mid-task counters if present

	cycleLog, err := cyclestate.NewLog(homeDir, logger)
	if err != nil {
		return nil, err
	}

	events, err := eventlog.Open(homeDir)
	if err != nil {
		return nil, err
	}

	client, err := lmclient.New(cfg.LLM)
	if err != nil {
		return nil, err
	}

	exec := executor.New(homeDir)

	engine, err := cycleengine.New(client, exec, cfg.Context.MaxTokens, time.Duration(cfg.Execution.CommandTimeout)*time.Second)
	if err != nil {
		return nil, err
	}

	admitter, err := curiosity.New(homeDir, ledger, store, cfg.Curiosity.MinValueThreshold, cfg.Curiosity.MaxProposalsPerCycle)
	if err != nil {
		return nil, err
	}

	msgBus := bus.New()

	svc := healthcheck.Services{LLM: client, Exec: exec}
	preflight := func() (bool, string) {
		r := healthcheck.Run(ctx, homeDir, healthcheck.Services{})
		if r.PreFlightOK() {
			return true, ""
		}
		for _, c := range r.Checks {
			if c.Status == healthcheck.StatusFail {
				return false, c.Message
			}
		}
		return false, "pre-flight check failed"
	}

	loop := &agentloop.Loop{
		Store:            store,
		Budget:           ledger,
		CycleLog:         cycleLog,
		Engine:           engine,
		Curiosity:        admitter,
		Events:           events,
		Bus:              msgBus,
		Logger:           logger,
		MaxCyclesPerTask: cfg.Budgets.MaxIterationsPerTask,
		MaxFailures:      cfg.Budgets.MaxConsecutiveFailures,
		MaxNoProgress:    cfg.Budgets.MaxActionsWithoutProgress,
		PreFlight:        preflight,
	}

	return &runtime{
		cfg:          cfg,
		logger:       &slogCloser{close: closer.Close},
		store:        store,
		ledger:       ledger,
		loop:         loop,
		svc:          svc,
		otelProvider: otelProvider,
		otelMetrics:  otelMetrics,
	}, nil
}

// tick runs one loop.Tick call wrapped in a span and duration/count
// metrics, the same boundary the teacher instruments its request loop at.
func (rt *runtime) tick(ctx context.Context) agentloop.TickResult {
	ctx, span := otelpkg.StartSpan(ctx, rt.otelProvider.Tracer, "clawd.tick")
	defer span.End()

	start := time.Now()
	result := rt.loop.Tick(ctx)
	elapsed := time.Since(start).Seconds()

	span.SetAttributes(otelpkg.AttrTaskID.String(result.TaskProcessed), otelpkg.AttrDecision.String(result.Decision))
	rt.otelMetrics.CycleDuration.Record(ctx, elapsed)
	rt.otelMetrics.CyclesTotal.Add(ctx, int64(result.CyclesRun))
	return result
}

func runTick(ctx context.Context, homeDir string) int {
	rt, err := buildRuntime(ctx, homeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return 1
	}
	defer rt.close()

	result := rt.tick(ctx)
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	if !result.Success {
		return 1
	}
	return 0
}

func runRun(ctx context.Context, homeDir string, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	interval := fs.Int("interval", 10, "seconds to sleep between idle ticks")
	_ = fs.Parse(args)

	rt, err := buildRuntime(ctx, homeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return 1
	}
	defer rt.close()

	maintenance := &unimplementedMaintenance{}
	sched := cron.NewScheduler(cron.Config{Maintenance: maintenance})
	sched.Start(ctx)
	defer sched.Stop()

	rt.loop.Run(ctx, time.Duration(*interval)*time.Second)
	return 0
}

func runHealth(ctx context.Context, homeDir string, args []string) int {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "emit the report as JSON")
	_ = fs.Parse(args)

	cfg, err := config.Load(homeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		return 1
	}

	var svc healthcheck.Services
	if client, err := lmclient.New(cfg.LLM); err == nil {
		svc.LLM = client
	}
	svc.Exec = executor.New(homeDir)

	report := healthcheck.Run(ctx, homeDir, svc)

	if *asJSON {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
	} else {
		for _, c := range report.Checks {
			fmt.Printf("[%s] %-16s %s\n", c.Status, c.Name, c.Message)
		}
	}
	if !report.OK() {
		return 1
	}
	return 0
}

func runInit(homeDir string) int {
	dirs := []string{
		filepath.Join(homeDir, "boot"),
		filepath.Join(homeDir, "memory"),
		filepath.Join(homeDir, "skills", "core"),
		filepath.Join(homeDir, "skills", "candidates"),
		filepath.Join(homeDir, "skills", "learned"),
		filepath.Join(homeDir, "skills", "deprecated"),
		filepath.Join(homeDir, "skills", "failed"),
		filepath.Join(homeDir, "tasks", "completed"),
		filepath.Join(homeDir, "tasks", "blocked"),
		filepath.Join(homeDir, "tasks", "history"),
		filepath.Join(homeDir, "logs", "events"),
		filepath.Join(homeDir, "logs", "daily"),
		filepath.Join(homeDir, "logs", "weekly"),
		filepath.Join(homeDir, "logs", "health"),
		filepath.Join(homeDir, "runtime"),
		filepath.Join(homeDir, "snapshots", "daily"),
		filepath.Join(homeDir, "snapshots", "weekly"),
		filepath.Join(homeDir, "snapshots", "monthly"),
		filepath.Join(homeDir, "scratch"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "creating %s: %v\n", d, err)
			return 1
		}
	}

	bootFiles := map[string]string{
		"identity.md":             "# Identity\n\n_Describe who this agent is and what it is for._\n",
		"invariants.md":           "# Invariants\n\n_List the rules this agent must never violate._\n",
		"operating_principles.md": "# Operating principles\n\n_Describe how this agent approaches tasks._\n",
	}
	for name, content := range bootFiles {
		path := filepath.Join(homeDir, "boot", name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "writing %s: %v\n", path, err)
			return 1
		}
	}

	memFiles := []string{"working.md", "long_term.md", "beliefs.md"}
	for _, name := range memFiles {
		path := filepath.Join(homeDir, "memory", name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "writing %s: %v\n", path, err)
			return 1
		}
	}

	inboxPath := filepath.Join(homeDir, "tasks", "inbox.md")
	if _, err := os.Stat(inboxPath); err != nil {
		os.WriteFile(inboxPath, []byte(""), 0o644)
	}
	activePath := filepath.Join(homeDir, "tasks", "active.md")
	if _, err := os.Stat(activePath); err != nil {
		os.WriteFile(activePath, []byte("# Active Task\n\n*No active task*\n"), 0o644)
	}

	configPath := config.ConfigPath(homeDir)
	if _, err := os.Stat(configPath); err != nil {
		cfg := config.Default(homeDir)
		if out, mErr := yaml.Marshal(cfg); mErr == nil {
			os.WriteFile(configPath, out, 0o644)
		}
	}

	fmt.Printf("initialized agent home at %s\n", homeDir)
	return 0
}

// unimplementedMaintenance satisfies cron.Maintenance for "run" so the
// scheduler loop has something to drive; every method reports the same
// out-of-scope collaborator boundary the CLI stubs do.
type unimplementedMaintenance struct{}

func (unimplementedMaintenance) WriteDailySummary(context.Context, string) (string, error) {
	return "", errs.New(errs.KindFilesystemDenied, "write_daily_summary is a collaborator contract, not implemented by the core")
}

func (unimplementedMaintenance) CreateSnapshot(context.Context, string) (string, string, error) {
	return "", "", errs.New(errs.KindFilesystemDenied, "create_snapshot is a collaborator contract, not implemented by the core")
}

func (unimplementedMaintenance) PromoteMemory(context.Context) ([]string, bool, error) {
	return nil, false, errs.New(errs.KindFilesystemDenied, "promote_memory is a collaborator contract, not implemented by the core")
}

func (unimplementedMaintenance) RunDailyMaintenance(context.Context) error {
	return errs.New(errs.KindFilesystemDenied, "run_daily_maintenance is a collaborator contract, not implemented by the core")
}
