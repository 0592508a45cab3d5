package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/mealgen/observe/exporters"
)

// Config holds all configuration for the Observer.
type Config struct {
	ServiceName string
	Version     string
	Tracing     TracingConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
}

// TracingConfig configures the tracing subsystem.
type TracingConfig struct {
	Enabled   bool
	Exporter  string  // otlp|jaeger|stdout|none
	SamplePct float64 // 0.0-1.0
}

// MetricsConfig configures the metrics subsystem.
type MetricsConfig struct {
	Enabled  bool
	Exporter string // otlp|prometheus|stdout|none
}

// LoggingConfig configures the logging subsystem.
type LoggingConfig struct {
	Enabled bool
	Level   string // debug|info|warn|error
	Format  string // json|console

	// File, when set, sends logs to a size-rotated file instead of stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrMissingServiceName
	}

	if c.Tracing.Enabled {
		if !slices.Contains(ValidTracingExporters, c.Tracing.Exporter) {
			return fmt.Errorf("%w: %q", ErrInvalidTracingExporter, c.Tracing.Exporter)
		}
		if c.Tracing.SamplePct < MinSamplePct || c.Tracing.SamplePct > MaxSamplePct {
			return fmt.Errorf("%w, got: %f", ErrInvalidSamplePct, c.Tracing.SamplePct)
		}
	}

	if c.Metrics.Enabled {
		if !slices.Contains(ValidMetricsExporters, c.Metrics.Exporter) {
			return fmt.Errorf("%w: %q", ErrInvalidMetricsExporter, c.Metrics.Exporter)
		}
	}

	if c.Logging.Enabled {
		if !slices.Contains(ValidLogLevels, c.Logging.Level) {
			return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
		}
		if !slices.Contains(ValidLogFormats, c.Logging.Format) {
			return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
		}
	}

	return nil
}

// Observer provides access to telemetry primitives.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Shutdown must honor cancellation/deadlines.
// - Errors: Shutdown should be idempotent and return the first error encountered.
type Observer interface {
	// Tracer returns the configured tracer.
	Tracer() trace.Tracer

	// Meter returns the configured meter.
	Meter() metric.Meter

	// Logger returns the configured logger.
	Logger() Logger

	// MetricsHandler serves the Prometheus scrape endpoint. It is nil unless
	// the prometheus metrics exporter is configured.
	MetricsHandler() http.Handler

	// Shutdown gracefully shuts down all telemetry providers.
	Shutdown(ctx context.Context) error
}

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Errors: logging must be best-effort and must not panic.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for a Field literal.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// observer is the concrete implementation of Observer.
type observer struct {
	tracer         trace.Tracer
	meter          metric.Meter
	logger         Logger
	logSync        func() error
	metricsHandler http.Handler
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// NewObserver creates a new Observer with the given configuration.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	obs := &observer{}

	// Set up resource for all providers
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if cfg.Tracing.Enabled {
		tp, tracer, err := setupTracing(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
		obs.tracerProvider = tp
		obs.tracer = tracer
	} else {
		obs.tracer = tracenoop.NewTracerProvider().Tracer("noop")
	}

	if cfg.Metrics.Enabled {
		mp, meter, handler, err := setupMetrics(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("failed to setup metrics: %w", err)
		}
		obs.meterProvider = mp
		obs.meter = meter
		obs.metricsHandler = handler
	} else {
		obs.meter = noop.NewMeterProvider().Meter("noop")
	}

	if cfg.Logging.Enabled {
		zl, err := newZapLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to setup logging: %w", err)
		}
		obs.logger = zl
		obs.logSync = zl.sync
	} else {
		obs.logger = NopLogger()
	}

	return obs, nil
}

func setupTracing(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, trace.Tracer, error) {
	exporter, err := exporters.NewTracingExporter(ctx, cfg.Tracing.Exporter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	if cfg.Tracing.SamplePct >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.Tracing.SamplePct <= 0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.Tracing.SamplePct)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	tracer := tp.Tracer(cfg.ServiceName)
	return tp, tracer, nil
}

func setupMetrics(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, metric.Meter, http.Handler, error) {
	var (
		reg     *promclient.Registry
		handler http.Handler
	)
	if cfg.Metrics.Exporter == "prometheus" {
		// Each observer owns its registry so several runtimes can share a
		// process without colliding on the default registerer.
		reg = promclient.NewRegistry()
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	var registerer promclient.Registerer
	if reg != nil {
		registerer = reg
	}
	reader, err := exporters.NewMetricsReader(ctx, cfg.Metrics.Exporter, registerer)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create metrics reader: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	meter := mp.Meter(cfg.ServiceName)
	return mp, meter, handler, nil
}

func (o *observer) Tracer() trace.Tracer {
	return o.tracer
}

func (o *observer) Meter() metric.Meter {
	return o.meter
}

func (o *observer) Logger() Logger {
	return o.logger
}

func (o *observer) MetricsHandler() http.Handler {
	return o.metricsHandler
}

func (o *observer) Shutdown(ctx context.Context) error {
	var errs []error

	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}

	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
		}
	}

	if o.logSync != nil {
		if err := o.logSync(); err != nil && !isIgnorableSyncError(err) {
			errs = append(errs, fmt.Errorf("logger sync: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (noopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (noopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l noopLogger) With(fields ...Field) Logger                          { return l }
