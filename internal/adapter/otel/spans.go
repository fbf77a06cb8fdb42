package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "novalink"

// StartCommandSpan starts a span for handling one user command.
func StartCommandSpan(ctx context.Context, agentID int64, rule string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "command",
		trace.WithAttributes(
			attribute.Int64("agent.id", agentID),
			attribute.String("command.rule", rule),
		),
	)
}

// StartBroadcastSpan starts a span for one snapshot broadcast.
func StartBroadcastSpan(ctx context.Context, eventType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "broadcast",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
		),
	)
}
