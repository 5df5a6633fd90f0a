// Package logging provides a minimal structured-logging abstraction so the
// rest of the module depends on a small interface (Logger) rather than a
// concrete logging library, while the default implementation is backed by
// go.uber.org/zap's SugaredLogger.
package logging

import (
	"go.uber.org/zap"
)

// Logger is the minimal structured-logging surface consumed throughout the
// module. Implementations should treat the trailing args as alternating
// key/value pairs, matching zap's SugaredLogger convention.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// NoOpLogger discards every message. It is the default when no Logger is
// supplied, keeping library behavior silent unless a caller opts in.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

// zapLogger adapts a *zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (z *zapLogger) Debug(msg string, keyvals ...any) { z.s.Debugw(msg, keyvals...) }
func (z *zapLogger) Info(msg string, keyvals ...any)  { z.s.Infow(msg, keyvals...) }
func (z *zapLogger) Warn(msg string, keyvals ...any)  { z.s.Warnw(msg, keyvals...) }
func (z *zapLogger) Error(msg string, keyvals ...any) { z.s.Errorw(msg, keyvals...) }

// NewZap wraps an existing *zap.Logger.
func NewZap(l *zap.Logger) Logger {
	return &zapLogger{s: l.Sugar()}
}

// NewProduction builds a JSON-structured Logger suitable for production use,
// writing to stderr at info level and above.
func NewProduction() Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		// zap's production config is static and should never fail to build;
		// fall back to a basic logger rather than panic a library caller.
		l = zap.NewExample()
	}
	return NewZap(l)
}

// NewDevelopment builds a human-readable, colorized Logger suited to local runs.
func NewDevelopment() Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		l = zap.NewExample()
	}
	return NewZap(l)
}

// Named wraps l (if it is a *zapLogger) with an additional logger name,
// falling back to the original logger when l isn't zap-backed.
func Named(l Logger, name string) Logger {
	if z, ok := l.(*zapLogger); ok {
		return &zapLogger{s: z.s.Named(name)}
	}
	return l
}
