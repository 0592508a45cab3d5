package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Span names.
const (
	SpanGenerate      = "mealgen.generate"
	SpanGenerationRun = "mealgen.generation.run"
)

// RequestMeta describes a generation request for telemetry purposes.
type RequestMeta struct {
	UserID    string // Requesting user (logs only, never a metric label)
	MealType  string // breakfast|lunch|dinner|snack
	Signature string // Short signature for display
	RunID     string // Set for the flight that runs the generator
}

// attributes returns span attributes. UserID is left out of spans and
// metrics to keep cardinality bounded.
func (m RequestMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("meal.type", m.MealType),
	}
	if m.Signature != "" {
		attrs = append(attrs, attribute.String("mealgen.signature", m.Signature))
	}
	if m.RunID != "" {
		attrs = append(attrs, attribute.String("mealgen.run_id", m.RunID))
	}
	return attrs
}

// LogFields returns the request's log fields.
func (m RequestMeta) LogFields() []Field {
	fields := []Field{
		F("meal.type", m.MealType),
	}
	if m.UserID != "" {
		fields = append(fields, F("user_id", m.UserID))
	}
	if m.Signature != "" {
		fields = append(fields, F("signature", m.Signature))
	}
	if m.RunID != "" {
		fields = append(fields, F("run_id", m.RunID))
	}
	return fields
}

// Tracer wraps OpenTelemetry tracing with request span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a named span carrying the request attributes.
	StartSpan(ctx context.Context, name string, meta RequestMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, name string, meta RequestMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("mealgen.error", false))
	return t.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("mealgen.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a tracer whose spans record nothing.
func NopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, name string, meta RequestMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, name)
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
