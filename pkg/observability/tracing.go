package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// defaultTracerName matches vango-go-vango's middleware.defaultTracerName
// convention, renamed to this module's domain.
const defaultTracerName = "weave"

// Tracer wraps refresh passes and individual element builds in spans,
// satisfying pkg/scheduler.Tracer. Grounded in vango-go-vango's
// pkg/middleware/otel.go (one span per unit of work, status set from the
// returned error, global TracerProvider).
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer resolves a tracer by name from the global OpenTelemetry
// TracerProvider - configure that provider in main() before serving.
func NewTracer(name string) *Tracer {
	if name == "" {
		name = defaultTracerName
	}
	return &Tracer{tracer: otel.Tracer(name)}
}

// StartRefresh implements pkg/scheduler.Tracer.
func (t *Tracer) StartRefresh(ctx context.Context) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "weave.refresh")
	return ctx, func() { span.End() }
}

// StartBuild implements pkg/scheduler.Tracer.
func (t *Tracer) StartBuild(ctx context.Context, elementID uint64) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "weave.build",
		trace.WithAttributes(attribute.Int64("weave.element_id", int64(elementID))))
	return ctx, func() { span.End() }
}

// RecordError sets span status to error and records err, for callers that
// hold a span across a fallible operation outside buildOne/RunPass (e.g.
// a periodic handler).
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
