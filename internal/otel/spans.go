package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for clawd spans.
var (
	AttrTaskID       = attribute.Key("clawd.task.id")
	AttrCycleID      = attribute.Key("clawd.cycle.id")
	AttrDecision     = attribute.Key("clawd.cycle.decision")
	AttrModel        = attribute.Key("clawd.llm.model")
	AttrTokensInput  = attribute.Key("clawd.llm.tokens.input")
	AttrTokensOutput = attribute.Key("clawd.llm.tokens.output")
	AttrActionType   = attribute.Key("clawd.action.type")
	AttrExitCode     = attribute.Key("clawd.executor.exit_code")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan starts a span for an outbound call (the LM API, a
// subprocess invocation).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
