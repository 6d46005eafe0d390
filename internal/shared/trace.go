// Package shared holds small cross-cutting helpers used throughout the
// runtime: context-scoped identifiers and secret redaction.
package shared

import (
	"context"

	"github.com/google/uuid"
)

type traceKey struct{}
type taskKey struct{}
type cycleKey struct{}

// WithTraceID attaches a trace_id to the context. A trace_id spans one
// Agent Loop tick, independent of which task or cycle the tick processes.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID extracts trace_id from context. Returns "-" if absent.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}

// NewTraceID generates a new trace_id.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTaskID attaches the task_id being processed by the current tick.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskKey{}, taskID)
}

// TaskID extracts task_id from context. Returns "-" if absent.
func TaskID(ctx context.Context) string {
	if v, ok := ctx.Value(taskKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}

// WithCycleID attaches the cycle_id being run within the current tick.
func WithCycleID(ctx context.Context, cycleID int) context.Context {
	return context.WithValue(ctx, cycleKey{}, cycleID)
}

// CycleID extracts cycle_id from context. Returns 0 if absent.
func CycleID(ctx context.Context) int {
	if v, ok := ctx.Value(cycleKey{}).(int); ok {
		return v
	}
	return 0
}
