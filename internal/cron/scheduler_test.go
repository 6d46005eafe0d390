package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/basket/clawd/internal/cron"
)

// fakeMaintenance records invocations and lets tests force an error from
// any method to exercise the scheduler's error-logging path.
type fakeMaintenance struct {
	mu sync.Mutex

	summaryCalls  int
	snapshotCalls int
	promoteCalls  int
	dailyCalls    int
	failDaily     bool
	failSnapshot  bool
}

func (f *fakeMaintenance) WriteDailySummary(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryCalls++
	return "summary.md", nil
}

func (f *fakeMaintenance) CreateSnapshot(_ context.Context, _ string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotCalls++
	if f.failSnapshot {
		return "", "", errors.New("snapshot failed")
	}
	return "deadbeef", "snapshot-1", nil
}

func (f *fakeMaintenance) PromoteMemory(_ context.Context) ([]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promoteCalls++
	return nil, false, nil
}

func (f *fakeMaintenance) RunDailyMaintenance(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dailyCalls++
	if f.failDaily {
		return errors.New("daily maintenance failed")
	}
	return nil
}

func (f *fakeMaintenance) counts() (summary, snapshot, promote, daily int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaryCalls, f.snapshotCalls, f.promoteCalls, f.dailyCalls
}

func waitFor(t *testing.T, deadline time.Duration, check func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestScheduler_FiresDueJob(t *testing.T) {
	m := &fakeMaintenance{}
	jobs := []cron.Job{
		{
			Name: "daily_maintenance",
			Expr: "* * * * *",
			Run: func(ctx context.Context, mm cron.Maintenance) error {
				return mm.RunDailyMaintenance(ctx)
			},
		},
	}
	sched := cron.NewScheduler(cron.Config{
		Maintenance: m,
		Logger:      slog.Default(),
		Jobs:        jobs,
		Interval:    10 * time.Millisecond,
	})

	// Force the job to look overdue relative to "now" immediately.
	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	defer func() {
		cancel()
		sched.Stop()
	}()

	waitFor(t, 2*time.Second, func() bool {
		_, _, _, daily := m.counts()
		return daily >= 1
	})
}

func TestScheduler_JobErrorDoesNotStopScheduler(t *testing.T) {
	m := &fakeMaintenance{failSnapshot: true}
	jobs := []cron.Job{
		{
			Name: "snapshot",
			Expr: "* * * * *",
			Run: func(ctx context.Context, mm cron.Maintenance) error {
				_, _, err := mm.CreateSnapshot(ctx, "scheduled")
				return err
			},
		},
	}
	sched := cron.NewScheduler(cron.Config{
		Maintenance: m,
		Logger:      slog.Default(),
		Jobs:        jobs,
		Interval:    10 * time.Millisecond,
	})
	sched.Start(context.Background())
	defer sched.Stop()

	waitFor(t, 2*time.Second, func() bool {
		_, snapshot, _, _ := m.counts()
		return snapshot >= 1
	})
}

func TestScheduler_StopHaltsFiring(t *testing.T) {
	m := &fakeMaintenance{}
	jobs := []cron.Job{
		{
			Name: "daily_maintenance",
			Expr: "* * * * *",
			Run: func(ctx context.Context, mm cron.Maintenance) error {
				return mm.RunDailyMaintenance(ctx)
			},
		},
	}
	sched := cron.NewScheduler(cron.Config{
		Maintenance: m,
		Logger:      slog.Default(),
		Jobs:        jobs,
		Interval:    10 * time.Millisecond,
	})
	sched.Start(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		_, _, _, daily := m.counts()
		return daily >= 1
	})
	sched.Stop()

	_, _, _, before := m.counts()
	time.Sleep(100 * time.Millisecond)
	_, _, _, after := m.counts()
	if after != before {
		t.Fatalf("expected no further firing after Stop, before=%d after=%d", before, after)
	}
}

func TestNextRunTime(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := cron.NextRunTime("0 3 * * *", base)
	if err != nil {
		t.Fatalf("NextRunTime: %v", err)
	}
	want := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}
}

func TestNextRunTime_InvalidExpr(t *testing.T) {
	if _, err := cron.NextRunTime("not a cron expr", time.Now()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
