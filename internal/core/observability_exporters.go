package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var expvarSeq uint64

// OperationStats aggregates every observed run of one operation.
type OperationStats struct {
	Runs     int64     `json:"runs"`
	Failures int64     `json:"failures"`
	TotalMS  float64   `json:"total_ms"`
	MaxMS    float64   `json:"max_ms"`
	LastRun  time.Time `json:"last_run"`
	LastOK   bool      `json:"last_ok"`
}

// ExpvarMetricsRecorder publishes per-operation run statistics as one
// expvar map.
type ExpvarMetricsRecorder struct {
	name  string
	clock Clock

	mu  sync.Mutex
	ops map[string]*OperationStats
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated sleevemark_service_metrics_<n> name when name is empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("sleevemark_service_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{name: name, clock: systemClock{}, ops: make(map[string]*OperationStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current statistics keyed by operation.
func (r *ExpvarMetricsRecorder) Snapshot() map[string]OperationStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]OperationStats, len(r.ops))
	for op, st := range r.ops {
		out[op] = *st
	}
	return out
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.ops[operation]
	if !ok {
		st = &OperationStats{}
		r.ops[operation] = st
	}
	st.Runs++
	if !success {
		st.Failures++
	}
	st.TotalMS += ms
	st.MaxMS = max(st.MaxMS, ms)
	st.LastRun = r.clock.Now()
	st.LastOK = success
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// PrometheusMetricsRecorder exports operation counts, latencies and the time
// of the last successful run on its own registry.
type PrometheusMetricsRecorder struct {
	registry    *prometheus.Registry
	clock       Clock
	total       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

// NewPrometheusMetricsRecorder registers the sleevemark collectors on a new registry.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	r := &PrometheusMetricsRecorder{
		registry: prometheus.NewRegistry(),
		clock:    systemClock{},
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sleevemark",
			Name:      "operations_total",
			Help:      "Service operations by outcome.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sleevemark",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"operation"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sleevemark",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per operation.",
		}, []string{"operation"}),
	}
	r.registry.MustRegister(r.total, r.duration, r.lastSuccess)
	return r
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.total.WithLabelValues(operation, statusLabel(success)).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
	if success {
		r.lastSuccess.WithLabelValues(operation).Set(float64(r.clock.Now().Unix()))
	}
}

// Registry exposes the registry for gathering or HTTP exposition.
func (r *PrometheusMetricsRecorder) Registry() *prometheus.Registry { return r.registry }

// Counter returns the operations_total child for operation and status.
func (r *PrometheusMetricsRecorder) Counter(operation string, success bool) prometheus.Counter {
	return r.total.WithLabelValues(operation, statusLabel(success))
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (r *PrometheusMetricsRecorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// MultiMetricsRecorder fans observations out to several recorders.
type MultiMetricsRecorder []MetricsRecorder

// Observe implements MetricsRecorder.
func (m MultiMetricsRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		if r != nil {
			r.Observe(ctx, operation, success, duration)
		}
	}
}

// TraceRecord is one finished span as written by JSONTracer.
type TraceRecord struct {
	RunID      string         `json:"run_id,omitempty"`
	Operation  string         `json:"operation"`
	Status     string         `json:"status"`
	Started    time.Time      `json:"started"`
	DurationMS float64        `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// JSONTracer writes each finished span as one JSON line and keeps the
// records for inspection.
type JSONTracer struct {
	clock Clock

	mu      sync.Mutex
	records []TraceRecord
	enc     *json.Encoder
}

// NewJSONTracer returns a tracer writing to w; a nil w only retains records.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{clock: systemClock{}}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Records returns the finished spans in completion order.
func (t *JSONTracer) Records() []TraceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceRecord(nil), t.records...)
}

// Start implements Tracer. The span carries the run id found on ctx.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{
		tracer: t,
		rec:    TraceRecord{RunID: RunIDFromContext(ctx), Operation: operation, Started: t.clock.Now()},
	}
}

type jsonSpan struct {
	tracer *JSONTracer
	rec    TraceRecord
}

func (s *jsonSpan) End(err error, detail map[string]any) {
	rec := s.rec
	rec.Status = statusLabel(err == nil)
	rec.DurationMS = float64(s.tracer.clock.Now().Sub(rec.Started)) / float64(time.Millisecond)
	if err != nil {
		rec.Error = err.Error()
	}
	if len(detail) > 0 {
		rec.Detail = make(map[string]any, len(detail))
		for k, v := range detail {
			rec.Detail[k] = v
		}
	}

	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.records = append(s.tracer.records, rec)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(rec)
	}
}
