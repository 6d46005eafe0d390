package otel

import (
	"context"
	"testing"
)

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	p, err := Init(context.Background(), Config{
		Enabled:  true,
		Exporter: "none",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	if m.CycleDuration == nil {
		t.Error("CycleDuration is nil")
	}
	if m.CyclesTotal == nil {
		t.Error("CyclesTotal is nil")
	}
	if m.LLMCallDuration == nil {
		t.Error("LLMCallDuration is nil")
	}
	if m.TokensUsed == nil {
		t.Error("TokensUsed is nil")
	}
	if m.ExecutorDuration == nil {
		t.Error("ExecutorDuration is nil")
	}
	if m.ExecutorErrors == nil {
		t.Error("ExecutorErrors is nil")
	}
	if m.ActiveTasks == nil {
		t.Error("ActiveTasks is nil")
	}
	if m.TasksCompletedTotal == nil {
		t.Error("TasksCompletedTotal is nil")
	}
	if m.TasksBlockedTotal == nil {
		t.Error("TasksBlockedTotal is nil")
	}
	if m.CuriosityAdmitted == nil {
		t.Error("CuriosityAdmitted is nil")
	}
	if m.CuriosityRejected == nil {
		t.Error("CuriosityRejected is nil")
	}
	if m.BudgetExhaustedTotal == nil {
		t.Error("BudgetExhaustedTotal is nil")
	}
}

func TestNewMetrics_NoopMeter(t *testing.T) {
	// Disabled OTel returns noop meter — metrics should still create without error.
	p, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics with noop: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
}
