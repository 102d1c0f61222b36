package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"sleevemark/internal/blob"
	"sleevemark/internal/config"
	"sleevemark/internal/core"
	"sleevemark/internal/logging"
	"sleevemark/internal/settings"
)

// app holds everything a command needs for one invocation.
type app struct {
	cfg      *config.Config
	zap      *zap.Logger
	logger   logging.Logger
	store    core.Backend
	closer   io.Closer
	blobs    blob.Store
	settings *settings.Repository
	svc      *core.Service
	prom     *core.PrometheusMetricsRecorder
	trace    *os.File
}

func openApp(ctx context.Context, configPath, logLevel string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	zl, err := logging.NewProduction(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, zap: zl, logger: logging.NewZap(zl)}

	a.store, a.closer, err = core.OpenPersistentStore(ctx, cfg.Storage, a.logger)
	if err != nil {
		_ = zl.Sync()
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.blobs, err = blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = a.closer.Close()
		_ = zl.Sync()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	a.settings = settings.NewRepository(a.blobs, a.logger)
	a.prom = core.NewPrometheusMetricsRecorder()
	opts := []core.Option{
		core.WithLogger(a.logger),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{a.prom, core.NewExpvarMetricsRecorder("")}),
		core.WithAuditRecorder(core.NewLoggerAuditRecorder(a.logger)),
		core.WithTransferWorkers(cfg.Transfer.Workers),
	}
	if path := cfg.Metrics.TraceFile; path != "" {
		a.trace, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		opts = append(opts, core.WithTracer(core.NewJSONTracer(a.trace)))
	}
	a.svc = core.NewService(a.store, opts...)
	return a, nil
}

// Close flushes metrics, closes the store and syncs the logger.
func (a *app) Close() error {
	var errs []error
	if path := a.cfg.Metrics.TextfilePath; path != "" {
		errs = append(errs, a.prom.WriteTextfile(path))
	}
	errs = append(errs, a.closer.Close())
	if c, ok := a.blobs.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.trace != nil {
		errs = append(errs, a.trace.Close())
	}
	// Sync on stderr returns EINVAL on some platforms.
	_ = a.zap.Sync()
	return errors.Join(errs...)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
