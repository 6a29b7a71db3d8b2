// Package observability holds the portal's structured logging and tracing
// plumbing shared by the web server and the CLI.
package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

var nop = zap.NewNop()

type loggerOptions struct {
	out     zapcore.WriteSyncer
	service string
}

// LoggerOption customises NewLogger.
type LoggerOption func(*loggerOptions)

// WithOutput sends log lines to w instead of stdout. The CLI uses it to keep
// logs off the terminal stream the user reads prompts from.
func WithOutput(w zapcore.WriteSyncer) LoggerOption {
	return func(o *loggerOptions) {
		if w != nil {
			o.out = w
		}
	}
}

// WithService tags every entry with a service name.
func WithService(name string) LoggerOption {
	return func(o *loggerOptions) {
		o.service = strings.TrimSpace(name)
	}
}

// NewLogger builds a JSON logger. An empty or unknown level means info.
func NewLogger(level string, opts ...LoggerOption) (*zap.Logger, error) {
	o := loggerOptions{out: zapcore.Lock(os.Stdout)}
	for _, opt := range opts {
		opt(&o)
	}

	lvl := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(strings.TrimSpace(level)); err == nil {
		lvl = parsed
	}

	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "severity",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})

	logger := zap.New(zapcore.NewCore(enc, o.out, zap.NewAtomicLevelAt(lvl)),
		zap.AddCaller(),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
	)
	if o.service != "" {
		logger = logger.With(zap.String("service", o.service))
	}
	return logger, nil
}

// WithLogger stores the logger on the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = nop
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the request logger, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return nop
	}
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return nop
}
