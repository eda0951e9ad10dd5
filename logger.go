package segtrace

import (
	"go.uber.org/zap"
)

// Logger receives human-readable diagnostics for delivery failures and
// anomalies. It is consumed fire-and-forget; messages need not be
// durable.
type Logger interface {
	// Error reports a failure the tracer absorbed on the caller's
	// behalf, such as a rejected chunk. err may be nil.
	Error(msg string, err error)

	// Debug reports low-volume internal events.
	Debug(msg string)
}

// zapLogger adapts a zap.Logger to the Logger interface.
type zapLogger struct {
	l *zap.Logger
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{l: l}
}

// NewDefaultLogger builds a production zap logger. Falls back to a
// no-op logger if construction fails, so tracer setup cannot crash
// over logging.
func NewDefaultLogger() Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return &zapLogger{l: zap.NewNop()}
	}
	return &zapLogger{l: l.Named("segtrace")}
}

func (z *zapLogger) Error(msg string, err error) {
	if err != nil {
		z.l.Error(msg, zap.Error(err))
		return
	}
	z.l.Error(msg)
}

func (z *zapLogger) Debug(msg string) {
	z.l.Debug(msg)
}

// NopLogger discards all diagnostics.
type NopLogger struct{}

func (NopLogger) Error(string, error) {}
func (NopLogger) Debug(string)        {}
