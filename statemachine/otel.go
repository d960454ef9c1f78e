package statemachine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName      = "statemachine"
	triggerSpanName = "statemachine.trigger"

	outcomeTransitioned = "transitioned"
	outcomeSkipped      = "skipped"
	outcomeStale        = "stale"
	outcomeUnknown      = "unknown"
	outcomePanic        = "panic"
)

// startTriggerSpan creates the span covering one trigger execution.
// Uses the global tracer initialized by the telemetry package.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func startTriggerSpan(ctx context.Context, machine, trigger string, timeout bool) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, triggerSpanName)
	span.SetAttributes(
		attribute.String("machine", machine),
		attribute.String("trigger", trigger),
		attribute.Bool("timeout", timeout),
	)

	return ctx, span
}

// endTriggerSpan records the outcome and ends the span.
func endTriggerSpan(span trace.Span, from, to, outcome string, err error) {
	span.SetAttributes(
		attribute.String("from", from),
		attribute.String("outcome", outcome),
	)

	if to != "" {
		span.SetAttributes(attribute.String("to", to))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, outcome)
	}

	span.End()
}

// extractTraceContext extracts trace ID and span ID from context for logging.
func extractTraceContext(ctx context.Context) (traceID, spanID string) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()

		return spanCtx.TraceID().String(), spanCtx.SpanID().String()
	}

	return "", ""
}
