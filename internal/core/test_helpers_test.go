package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"sleevemark/internal/infra/persistence/memory"
	"sleevemark/pkg/domain"
)

type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (c *captureLogger) add(level, msg string, args []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, level+msg+" "+fmt.Sprint(args))
}

func (c *captureLogger) Debug(msg string, args ...any) { c.add("d:", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.add("i:", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.add("w:", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.add("e:", msg, args) }

func (c *captureLogger) contains(prefix string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) last(t *testing.T) AuditEntry {
	t.Helper()
	if len(c.entries) == 0 {
		t.Fatalf("expected an audit entry")
	}
	return c.entries[len(c.entries)-1]
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op     string
	runID  string
	err    error
	detail map[string]any
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op, runID: RunIDFromContext(ctx)}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
	runID  string
}

func (s *captureSpan) End(err error, detail map[string]any) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, runID: s.runID, err: err, detail: detail})
}

var fixedTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func stubClock() Clock {
	return ClockFunc(func() time.Time { return fixedTime })
}

type observed struct {
	svc     *Service
	store   *memory.Store
	logger  *captureLogger
	audit   *captureAuditRecorder
	metrics *captureMetricsRecorder
	tracer  *captureTracer
}

func newObserved(store *memory.Store, opts ...Option) observed {
	o := observed{
		store:   store,
		logger:  &captureLogger{},
		audit:   &captureAuditRecorder{},
		metrics: &captureMetricsRecorder{},
		tracer:  &captureTracer{},
	}
	base := []Option{
		WithLogger(o.logger),
		WithAuditRecorder(o.audit),
		WithMetricsRecorder(o.metrics),
		WithTracer(o.tracer),
		WithClock(stubClock()),
		WithRunIDs(func() string { return "run-1" }),
	}
	o.svc = NewService(store, append(base, opts...)...)
	return o
}

// markFixture holds a chilled water cluster (10), a duct/pipe combined
// sleeve (20) and two plain sleeves (30 duct, 40 pipe).
func markFixture() *memory.Store {
	store := memory.NewStore()
	store.PutZones(
		domain.ClashZone{ID: "z1", Category: domain.CategoryDuct, SystemType: "Chilled Water Supply", ClusterSleeveID: 10, Resolved: true, Level: "L1"},
		domain.ClashZone{ID: "z2", Category: domain.CategoryDuct, SystemType: "Chilled Water Supply", ClusterSleeveID: 10, Resolved: true, Level: "L1"},
		domain.ClashZone{ID: "z3", Category: domain.CategoryDuct, LinkID: 1, SystemType: "Supply Air", CombinedInstanceID: 20, Level: "L1"},
		domain.ClashZone{ID: "z4", Category: domain.CategoryPipe, LinkID: 2, SystemType: "Domestic Cold Water", CombinedInstanceID: 20, Level: "L1"},
		domain.ClashZone{ID: "z5", Category: domain.CategoryDuct, SystemType: "Exhaust Air", SleeveInstanceID: 30, Level: "L1"},
		domain.ClashZone{ID: "z6", Category: domain.CategoryPipe, SystemType: "Sanitary", SleeveInstanceID: 40, Level: "L2"},
	)
	store.PutElements(
		domain.Element{ID: 10, Category: domain.CategoryDuct, Kind: domain.SleeveCluster, Level: "L1"},
		domain.Element{ID: 20, Category: domain.CategoryDuct, Kind: domain.SleeveCombined, Level: "L1"},
		domain.Element{ID: 30, Category: domain.CategoryDuct, Kind: domain.SleeveIndividual, Level: "L1"},
		domain.Element{ID: 40, Category: domain.CategoryPipe, Kind: domain.SleeveIndividual, Level: "L2"},
	)
	return store
}

func chwSettings(t *testing.T) *domain.MarkPrefixSettings {
	t.Helper()
	in := domain.DefaultSettingsInput()
	in.Overrides = map[string][]domain.OverrideEntry{
		"Duct": {{SystemType: "Chilled Water Supply", Prefix: "CHW"}},
	}
	s, err := domain.NewMarkPrefixSettings(in)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	return s
}

func markOf(t *testing.T, store *memory.Store, id domain.ElementID) string {
	t.Helper()
	var mark string
	_ = store.View(context.Background(), func(v domain.DocumentView) error {
		if e, ok := v.Element(id); ok {
			mark = e.Sleeve().Mark
		}
		return nil
	})
	return mark
}

func setMark(store *memory.Store, id domain.ElementID, mark string) {
	_, _ = store.RunInTransaction(context.Background(), "seed", func(tx domain.DocumentTx) error {
		return tx.WriteAttribute(id, domain.AttrMark, domain.StringValue(mark))
	})
}
