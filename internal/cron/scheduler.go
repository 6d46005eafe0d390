// Package cron is the Maintenance Scheduler: a robfig/cron-driven shell
// that invokes the Maintenance collaborator's methods on a schedule. It
// implements none of write_daily_summary/create_snapshot/restore_snapshot/
// promote_memory itself — those stay an interface per the external
// interface's "Maintenance collaborator" contract — it only owns the cron
// expressions and the invocation loop.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Maintenance is the collaborator contract the scheduler drives. The core
// does not implement these methods; it only calls them on the configured
// schedule, matching the external interface's Maintenance collaborator.
type Maintenance interface {
	WriteDailySummary(ctx context.Context, date string) (string, error)
	CreateSnapshot(ctx context.Context, reason string) (commit, tag string, err error)
	PromoteMemory(ctx context.Context) (promoted []string, workingCleared bool, err error)
	RunDailyMaintenance(ctx context.Context) error
}

// Job binds a cron expression to one Maintenance invocation.
type Job struct {
	Name string
	Expr string
	Run  func(ctx context.Context, m Maintenance) error
}

// DefaultJobs returns the standard maintenance schedule: a nightly
// summary/promote pass and a periodic snapshot, matching the cadence
// original_source/.../maintenance.py runs as a single daily job (split
// here into independently-scheduled cron entries since the Go scheduler
// fires each job on its own expression rather than one combined script).
func DefaultJobs() []Job {
	return []Job{
		{
			Name: "daily_maintenance",
			Expr: "0 3 * * *",
			Run: func(ctx context.Context, m Maintenance) error {
				return m.RunDailyMaintenance(ctx)
			},
		},
		{
			Name: "snapshot",
			Expr: "0 */6 * * *",
			Run: func(ctx context.Context, m Maintenance) error {
				_, _, err := m.CreateSnapshot(ctx, "scheduled")
				return err
			},
		},
	}
}

// Scheduler periodically checks each Job's cron expression and invokes it
// against the configured Maintenance collaborator when due.
type Scheduler struct {
	maintenance Maintenance
	logger      *slog.Logger
	interval    time.Duration
	jobs        []Job

	mu    sync.Mutex
	next  map[string]time.Time
	nowFn func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds the dependencies for the cron scheduler.
type Config struct {
	Maintenance Maintenance
	Logger      *slog.Logger
	Jobs        []Job
	// Interval is how often the scheduler checks for due jobs; it should
	// be finer-grained than the coarsest cron expression configured (a
	// minute is the cron floor, so a sub-minute interval is typical).
	Interval time.Duration
}

// NewScheduler creates a new Scheduler with the given config. A nil Jobs
// list falls back to DefaultJobs().
func NewScheduler(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	jobs := cfg.Jobs
	if jobs == nil {
		jobs = DefaultJobs()
	}
	return &Scheduler{
		maintenance: cfg.Maintenance,
		logger:      logger,
		interval:    interval,
		jobs:        jobs,
		next:        make(map[string]time.Time),
		nowFn:       time.Now,
	}
}

// Start begins the scheduler loop. It runs in a background goroutine and
// respects the provided context for shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	now := s.nowFn()
	for _, j := range s.jobs {
		if nr, err := NextRunTime(j.Expr, now); err == nil {
			s.next[j.Name] = nr
		} else {
			s.logger.Error("cron: invalid job expression", "job", j.Name, "expr", j.Expr, "error", err)
		}
	}
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("maintenance scheduler started", "interval", s.interval, "jobs", len(s.jobs))
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("maintenance scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires every job whose next-run time has passed.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.nowFn()
	for _, j := range s.jobs {
		s.mu.Lock()
		due := !s.next[j.Name].After(now)
		s.mu.Unlock()
		if !due {
			continue
		}
		s.fire(ctx, j, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, j Job, now time.Time) {
	if err := j.Run(ctx, s.maintenance); err != nil {
		s.logger.Error("cron: maintenance job failed", "job", j.Name, "error", err)
	} else {
		s.logger.Info("cron: maintenance job fired", "job", j.Name)
	}

	nextRun, err := NextRunTime(j.Expr, now)
	if err != nil {
		s.logger.Error("cron: failed to compute next run time", "job", j.Name, "expr", j.Expr, "error", err)
		return
	}
	s.mu.Lock()
	s.next[j.Name] = nextRun
	s.mu.Unlock()
}

// NextRunTime parses the cron expression and returns the next run time
// after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
