package observe

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"syscall"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLogLevel parses a string log level. Unknown values map to info.
func ParseLogLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// zapLogger adapts a zap.Logger to Logger.
type zapLogger struct {
	z *zap.Logger
}

// NewLogger creates a JSON logger writing to stderr at the given level.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a JSON logger writing to w.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.Lock(zapcore.AddSync(w)),
		ParseLogLevel(level),
	)
	return &zapLogger{z: zap.New(core)}
}

// NewZap wraps an existing zap logger.
func NewZap(z *zap.Logger) Logger {
	if z == nil {
		return NopLogger()
	}
	return &zapLogger{z: z}
}

func newZapLogger(cfg LoggingConfig) (*zapLogger, error) {
	var sink zapcore.WriteSyncer
	if cfg.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	} else {
		sink = zapcore.Lock(os.Stderr)
	}

	var enc zapcore.Encoder
	switch cfg.Format {
	case "console":
		ec := encoderConfig()
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	case "json", "":
		enc = zapcore.NewJSONEncoder(encoderConfig())
	default:
		return nil, ErrInvalidLogFormat
	}

	core := zapcore.NewCore(enc, sink, ParseLogLevel(cfg.Level))
	return &zapLogger{z: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))}, nil
}

func encoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.LevelKey = "level"
	ec.MessageKey = "msg"
	ec.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	ec.EncodeLevel = zapcore.LowercaseLevelEncoder
	return ec
}

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(toZapFields(fields)...)}
}

func (l *zapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *zapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

func (l *zapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *zapLogger) log(ctx context.Context, level zapcore.Level, msg string, fields []Field) {
	ce := l.z.Check(level, msg)
	if ce == nil {
		return
	}

	zf := toZapFields(fields)
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			zf = append(zf,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
	}
	ce.Write(zf...)
}

func (l *zapLogger) sync() error {
	return l.z.Sync()
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if isRedactedField(f.Key) {
			out = append(out, zap.String(f.Key, "[REDACTED]"))
			continue
		}
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.String(f.Key, err.Error()))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

// isRedactedField returns true if the field should be redacted.
func isRedactedField(key string) bool {
	for _, k := range RedactedFields {
		if k == key {
			return true
		}
	}
	return false
}

// isIgnorableSyncError filters the EINVAL/ENOTTY zap reports when syncing a
// terminal or pipe.
func isIgnorableSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EBADF)
}

// Ensure zapLogger implements Logger
var _ Logger = (*zapLogger)(nil)
