package observe

import (
	"context"
	"time"
)

// RunFunc is a unit of instrumented work, typically one generator call.
type RunFunc func(ctx context.Context) error

// Middleware bundles the tracer, metrics and logger used by the pipeline and
// wraps generator runs with all three.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: Run propagates the span context to fn.
//   - Errors: errors from fn are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
// Nil components are replaced with no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// NopMiddleware returns a Middleware that records nothing.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// Tracer returns the middleware's tracer.
func (m *Middleware) Tracer() Tracer { return m.tracer }

// Metrics returns the middleware's metrics.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger { return m.logger }

// Run executes fn inside a generation span, then records its duration and
// outcome.
func (m *Middleware) Run(ctx context.Context, meta RequestMeta, fn RunFunc) error {
	ctx, span := m.tracer.StartSpan(ctx, SpanGenerationRun, meta)

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	m.tracer.EndSpan(span, err)
	m.metrics.RecordGeneration(ctx, meta, duration, err)

	fields := append(meta.LogFields(), F("duration_ms", float64(duration.Milliseconds())))
	if err != nil {
		fields = append(fields, F("error", err.Error()))
		m.logger.Error(ctx, "generation failed", fields...)
	} else {
		m.logger.Info(ctx, "generation completed", fields...)
	}

	return err
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
