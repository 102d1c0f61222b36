package core

import (
	"context"
	"sort"
	"time"

	"sleevemark/internal/logging"
)

// Clock supplies timestamps for audit entries.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// MetricsRecorder observes the outcome and duration of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan is ended exactly once with the operation error and the detail
// that is also written to the audit entry.
type TraceSpan interface {
	End(err error, detail map[string]any)
}

type runIDKey struct{}

// ContextWithRunID attaches the id of the current service run to ctx.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run id set by ContextWithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Tracer opens a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// AuditStatus is the outcome recorded for an audited operation.
type AuditStatus string

// Audit statuses.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one service operation run.
type AuditEntry struct {
	RunID     string         `json:"run_id"`
	Operation string         `json:"operation"`
	Status    AuditStatus    `json:"status"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// AuditRecorder receives audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error, map[string]any) {}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

// LoggerAuditRecorder writes audit entries to a Logger at info level, or
// warn level for failures.
type LoggerAuditRecorder struct {
	logger logging.Logger
}

// NewLoggerAuditRecorder binds an audit recorder to logger.
func NewLoggerAuditRecorder(logger logging.Logger) *LoggerAuditRecorder {
	return &LoggerAuditRecorder{logger: logging.OrNoop(logger)}
}

// Record implements AuditRecorder.
func (r *LoggerAuditRecorder) Record(_ context.Context, e AuditEntry) {
	args := []any{
		"run_id", e.RunID,
		"operation", e.Operation,
		"status", e.Status,
		"duration_ms", float64(e.Duration) / float64(time.Millisecond),
		"at", e.Timestamp,
	}
	keys := make([]string, 0, len(e.Detail))
	for k := range e.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, e.Detail[k])
	}
	if e.Status == AuditStatusError {
		r.logger.Warn("audit", append(args, "error", e.Error)...)
		return
	}
	r.logger.Info("audit", args...)
}
