package core

import (
	"context"
	"fmt"
	"io"

	"sleevemark/internal/config"
	"sleevemark/internal/infra/persistence/memory"
	"sleevemark/internal/infra/persistence/postgres"
	"sleevemark/internal/infra/persistence/sqlite"
	"sleevemark/internal/logging"
	"sleevemark/pkg/domain"
)

// Backend is a persistent store that can also bulk import and export state.
// The memory, sqlite and postgres stores all satisfy it.
type Backend interface {
	domain.PersistentStore
	Import(ctx context.Context, snapshot memory.Snapshot) error
	ExportState() memory.Snapshot
}

var (
	_ Backend = (*memory.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
)

// OpenPersistentStore selects a backend from cfg. The returned closer is a
// no-op for the memory driver.
func OpenPersistentStore(ctx context.Context, cfg config.StorageConfig, logger logging.Logger) (Backend, io.Closer, error) {
	logger = logging.OrNoop(logger)
	switch cfg.Driver {
	case config.StorageMemory:
		logger.Debug("using in-memory store")
		return memory.NewStore(), nopCloser{}, nil
	case config.StorageSQLite, "":
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("using sqlite store", "path", store.Path())
		return store, store, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("using postgres store")
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ImportState merges snapshot into the store.
func (s *Service) ImportState(ctx context.Context, snapshot memory.Snapshot) error {
	return s.run(ctx, OpImportState, func(ctx context.Context, _ logging.Logger) (map[string]any, error) {
		if err := s.store.Import(ctx, snapshot); err != nil {
			return nil, err
		}
		return map[string]any{
			"zones":     len(snapshot.Zones),
			"elements":  len(snapshot.Elements),
			"snapshots": len(snapshot.Snapshots),
		}, nil
	})
}
