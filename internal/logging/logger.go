// Package logging defines the leveled key/value Logger used across the
// marking and transfer engines and its zap-backed implementation.
package logging

// Logger is a minimal leveled logger. Arguments after msg are alternating
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Noop returns a Logger that discards everything.
func Noop() Logger { return noopLogger{} }

// OrNoop returns l, or a discarding logger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// With returns a Logger that prepends args to every call.
func With(l Logger, args ...any) Logger {
	if len(args) == 0 {
		return OrNoop(l)
	}
	return withLogger{base: OrNoop(l), args: args}
}

type withLogger struct {
	base Logger
	args []any
}

func (w withLogger) merge(args []any) []any {
	out := make([]any, 0, len(w.args)+len(args))
	out = append(out, w.args...)
	return append(out, args...)
}

func (w withLogger) Debug(msg string, args ...any) { w.base.Debug(msg, w.merge(args)...) }
func (w withLogger) Info(msg string, args ...any)  { w.base.Info(msg, w.merge(args)...) }
func (w withLogger) Warn(msg string, args ...any)  { w.base.Warn(msg, w.merge(args)...) }
func (w withLogger) Error(msg string, args ...any) { w.base.Error(msg, w.merge(args)...) }
