package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const sessionTracerName = "session-supervisor.session"

func sessionTracer() trace.Tracer {
	return Tracer(sessionTracerName)
}

// TraceCreateSession creates a span covering worktree provisioning through
// child process spawn.
func TraceCreateSession(ctx context.Context, taskID, executorType string) (context.Context, trace.Span) {
	ctx, span := sessionTracer().Start(ctx, "session.create",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("task_id", taskID),
		attribute.String("executor_type", executorType),
	)
	return ctx, span
}

// TraceCreateSessionResult records the outcome of create_session on its span.
func TraceCreateSessionResult(span trace.Span, sessionID string, err error) {
	span.SetAttributes(attribute.String("session_id", sessionID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TraceStopSession creates a span for a stop_session call.
func TraceStopSession(ctx context.Context, sessionID string, force bool) (context.Context, trace.Span) {
	ctx, span := sessionTracer().Start(ctx, "session.stop",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Bool("force", force),
	)
	return ctx, span
}

// TraceCleanupSession creates a span for a cleanup_session call.
func TraceCleanupSession(ctx context.Context, sessionID string, deleteBranch bool) (context.Context, trace.Span) {
	ctx, span := sessionTracer().Start(ctx, "session.cleanup",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Bool("delete_branch", deleteBranch),
	)
	return ctx, span
}

// TraceSpanResult records an error outcome, if any, on an arbitrary span.
func TraceSpanResult(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
