package observe

import "errors"

// Configuration errors.
var (
	// ErrMissingServiceName indicates Config.ServiceName is empty.
	ErrMissingServiceName = errors.New("observe: service name is required")

	// ErrInvalidSamplePct indicates Tracing.SamplePct is not in [0.0, 1.0].
	ErrInvalidSamplePct = errors.New("observe: sample percentage must be between 0.0 and 1.0")

	// ErrInvalidTracingExporter indicates an unknown tracing exporter name.
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")

	// ErrInvalidMetricsExporter indicates an unknown metrics exporter name.
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")

	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("observe: invalid log level")

	// ErrInvalidLogFormat indicates a log format other than json or console.
	ErrInvalidLogFormat = errors.New("observe: invalid log format")
)

// Runtime errors.
var (
	// ErrNilObserver indicates a nil Observer was provided.
	ErrNilObserver = errors.New("observe: observer is nil")
)

// Validation constants.
const (
	// MinSamplePct is the minimum valid sampling percentage.
	MinSamplePct = 0.0
	// MaxSamplePct is the maximum valid sampling percentage.
	MaxSamplePct = 1.0
)

// ValidTracingExporters lists valid tracing exporter names.
var ValidTracingExporters = []string{"otlp", "jaeger", "stdout", "none", ""}

// ValidMetricsExporters lists valid metrics exporter names.
var ValidMetricsExporters = []string{"otlp", "prometheus", "stdout", "none", ""}

// ValidLogLevels lists valid log level names.
var ValidLogLevels = []string{"debug", "info", "warn", "error", ""}

// ValidLogFormats lists valid log format names.
var ValidLogFormats = []string{"json", "console", ""}

// RedactedFields lists field keys that are automatically redacted in logs.
// Generated payloads can carry user health data; the rest may hold
// credentials.
var RedactedFields = []string{
	"payload",
	"password",
	"secret",
	"token",
	"api_key",
	"apiKey",
	"dsn",
	"credential",
}
