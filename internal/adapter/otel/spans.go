package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "fleetwatch"

// StartPublishSpan starts a span for one hook publish and its synchronous dispatch.
func StartPublishSpan(ctx context.Context, hookID, hookType string, depth int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "hook.publish",
		trace.WithAttributes(
			attribute.String("hook.id", hookID),
			attribute.String("hook.type", hookType),
			attribute.Int("hook.depth", depth),
		),
	)
}

// StartIngestSpan starts a span for one ingested queue message.
func StartIngestSpan(ctx context.Context, subject string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "fleet.ingest",
		trace.WithAttributes(
			attribute.String("messaging.subject", subject),
		),
	)
}

// StartRelaySpan starts a span for forwarding a hook to the queue.
func StartRelaySpan(ctx context.Context, hookID, subject string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "hook.relay",
		trace.WithAttributes(
			attribute.String("hook.id", hookID),
			attribute.String("messaging.subject", subject),
		),
	)
}
