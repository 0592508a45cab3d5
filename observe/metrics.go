package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names.
const (
	MetricCacheLookups       = "mealgen.cache.lookups"
	MetricCacheDuplicates    = "mealgen.cache.duplicates"
	MetricBudgetRejections   = "mealgen.budget.rejections"
	MetricGenerationTotal    = "mealgen.generation.total"
	MetricGenerationErrors   = "mealgen.generation.errors"
	MetricGenerationDuration = "mealgen.generation.duration_ms"
)

// Metrics records pipeline metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup records a cache lookup and whether it hit.
	RecordLookup(ctx context.Context, meta RequestMeta, hit bool)

	// RecordRejection records a budget rejection for the given scope.
	RecordRejection(ctx context.Context, meta RequestMeta, scope string)

	// RecordGeneration records one generator run with duration and error status.
	RecordGeneration(ctx context.Context, meta RequestMeta, duration time.Duration, err error)

	// RecordDuplicate records an insert that lost to a concurrent writer.
	RecordDuplicate(ctx context.Context, meta RequestMeta)
}

type metricsImpl struct {
	lookups      metric.Int64Counter
	duplicates   metric.Int64Counter
	rejections   metric.Int64Counter
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates the pipeline instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	lookups, err := meter.Int64Counter(
		MetricCacheLookups,
		metric.WithDescription("Generation cache lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	duplicates, err := meter.Int64Counter(
		MetricCacheDuplicates,
		metric.WithDescription("Inserts discarded because the signature was already stored"),
		metric.WithUnit("{insert}"),
	)
	if err != nil {
		return nil, err
	}

	rejections, err := meter.Int64Counter(
		MetricBudgetRejections,
		metric.WithDescription("Generation requests rejected by the budget guard"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	totalCount, err := meter.Int64Counter(
		MetricGenerationTotal,
		metric.WithDescription("Total number of generator runs"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		MetricGenerationErrors,
		metric.WithDescription("Total number of failed generator runs"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		MetricGenerationDuration,
		metric.WithDescription("Generator run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		lookups:      lookups,
		duplicates:   duplicates,
		rejections:   rejections,
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordLookup(ctx context.Context, meta RequestMeta, hit bool) {
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("meal.type", meta.MealType),
		attribute.Bool("cache.hit", hit),
	))
}

func (m *metricsImpl) RecordRejection(ctx context.Context, meta RequestMeta, scope string) {
	m.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("meal.type", meta.MealType),
		attribute.String("budget.scope", scope),
	))
}

func (m *metricsImpl) RecordGeneration(ctx context.Context, meta RequestMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(attribute.String("meal.type", meta.MealType))

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordDuplicate(ctx context.Context, meta RequestMeta) {
	m.duplicates.Add(ctx, 1, metric.WithAttributes(attribute.String("meal.type", meta.MealType)))
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) RecordLookup(context.Context, RequestMeta, bool)                      {}
func (noopMetrics) RecordRejection(context.Context, RequestMeta, string)                 {}
func (noopMetrics) RecordGeneration(context.Context, RequestMeta, time.Duration, error) {}
func (noopMetrics) RecordDuplicate(context.Context, RequestMeta)                         {}
