// Package core orchestrates marking, resetting and attribute transfer over a
// persistent store, wrapping every operation with logging, metrics, tracing
// and audit.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sleevemark/internal/logging"
	"sleevemark/pkg/domain"
)

// Operation names used for metrics, traces and audit entries.
const (
	OpMarkSleeves      = "mark_sleeves"
	OpResetMarks       = "reset_marks"
	OpBatchTransfer    = "batch_transfer"
	OpCaptureSnapshots = "capture_snapshots"
	OpImportState      = "import_state"
)

// Service exposes the marking and transfer operations over one store.
type Service struct {
	store   Backend
	logger  logging.Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	workers int
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the audit timestamp source.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditRecorder installs an audit recorder.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithTransferWorkers sets the calculate-phase worker bound used when a
// transfer configuration leaves it at zero.
func WithTransferWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRunIDs overrides run id generation.
func WithRunIDs(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService constructs a service backed by store.
func NewService(store Backend, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  logging.Noop(),
		clock:   systemClock{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() Backend {
	return s.store
}

// run wraps op with tracing, metrics, audit and logging. Panics inside fn
// are converted to errors so a batch failure is always reported.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context, log logging.Logger) (map[string]any, error)) (err error) {
	runID := s.newID()
	log := logging.With(s.logger, "operation", op, "run_id", runID)
	ctx, span := s.tracer.Start(ContextWithRunID(ctx, runID), op)
	started := time.Now()
	var detail map[string]any
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: unexpected failure: %v", op, p)
		}
		elapsed := time.Since(started)
		span.End(err, detail)
		s.metrics.Observe(ctx, op, err == nil, elapsed)
		entry := AuditEntry{
			RunID:     runID,
			Operation: op,
			Status:    AuditStatusSuccess,
			Duration:  elapsed,
			Timestamp: s.clock.Now(),
			Detail:    detail,
		}
		if err != nil {
			entry.Status = AuditStatusError
			entry.Error = err.Error()
			log.Error("operation failed", "error", err, "duration", elapsed)
		} else {
			log.Info("operation completed", "duration", elapsed)
		}
		s.audit.Record(ctx, entry)
	}()
	if s.store == nil {
		return fmt.Errorf("%s: no store configured", op)
	}
	log.Debug("operation started")
	detail, err = fn(ctx, log)
	return err
}

// CaptureSnapshots stores conduit/host attribute snapshots for later transfers.
func (s *Service) CaptureSnapshots(ctx context.Context, data domain.SnapshotData) error {
	return s.run(ctx, OpCaptureSnapshots, func(ctx context.Context, _ logging.Logger) (map[string]any, error) {
		if err := s.store.SaveSnapshots(ctx, data); err != nil {
			return nil, err
		}
		return map[string]any{"records": len(data.Records), "aliases": len(data.Aliases)}, nil
	})
}
