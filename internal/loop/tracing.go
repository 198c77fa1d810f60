// Tracing instrumentation for session runs.
package loop

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/conductor/internal/session"
)

// startSessionSpan starts a span for one session run.
func (r *Runner) startSessionSpan(ctx context.Context, sess *session.Session) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "session.run")
	span.SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("session.role", sess.Role),
		attribute.String("session.stage", sess.StageType),
		attribute.Int("session.depth", sess.NestingDepth),
	)
	return ctx, span
}

// endSessionSpan ends the session span with outcome info.
func (r *Runner) endSessionSpan(span trace.Span, sess *session.Session, err error) {
	span.SetAttributes(
		attribute.String("session.outcome", sess.Outcome),
		attribute.Int("session.iterations", sess.Iterations),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// startToolSpan starts a span for one tool execution.
func (r *Runner) startToolSpan(ctx context.Context, sess *session.Session, tool string) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "tool."+tool)
	span.SetAttributes(
		attribute.String("tool.name", tool),
		attribute.String("tool.session", sess.ID),
	)
	return ctx, span
}

// endToolSpan ends the tool span.
func (r *Runner) endToolSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
