// Package logging builds JSON zap loggers with service metadata and adds
// trace and request correlation fields from a request context.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/otherjamesbrown/agency-service/shared/observability"
)

// Logger wraps zap.Logger with the configuration it was built from.
type Logger struct {
	*zap.Logger
	config Config
}

// New creates a logger writing to cfg.OutputPath.
func New(cfg Config) (*Logger, error) {
	if cfg.OutputPath == "" {
		cfg.OutputPath = "stdout"
	}
	writer, err := getOutputWriter(cfg.OutputPath)
	if err != nil {
		return nil, err
	}
	return NewWithWriter(cfg, writer), nil
}

// NewWithWriter creates a logger writing JSON lines to w.
func NewWithWriter(cfg Config, w io.Writer) *Logger {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "unknown"
	}
	if cfg.Environment == "" {
		cfg.Environment = getEnvOrDefault("ENVIRONMENT", "development")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		parseLogLevel(cfg.LogLevel),
	)
	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(
			zap.String("service", cfg.ServiceName),
			zap.String("environment", cfg.Environment),
		),
	)
	return &Logger{Logger: logger, config: cfg}
}

// MustNew creates a logger and panics on error.
func MustNew(cfg Config) *Logger {
	logger, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return logger
}

// Config returns the configuration the logger was built with.
func (l *Logger) Config() Config {
	return l.config
}

// WithContext adds trace_id, span_id and request_id when ctx carries them.
func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	return FromContext(l.Logger, ctx)
}

// FromContext is WithContext for a plain zap logger.
func FromContext(logger *zap.Logger, ctx context.Context) *zap.Logger {
	var fields []zap.Field
	if spanCtx := trace.SpanFromContext(ctx).SpanContext(); spanCtx.IsValid() {
		fields = append(fields,
			zap.String("trace_id", spanCtx.TraceID().String()),
			zap.String("span_id", spanCtx.SpanID().String()),
		)
	}
	if id, ok := observability.RequestIDFromContext(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// WithAccount returns a logger tagged with the calling account.
func (l *Logger) WithAccount(accountID int64) *zap.Logger {
	return l.Logger.With(zap.Int64("account_id", accountID))
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}

func getOutputWriter(path string) (io.Writer, error) {
	switch strings.ToLower(path) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
}
