// Package driver opens the storage backend named in the configuration.
package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmynk/splitsync/internal/config"
	"github.com/mmynk/splitsync/internal/storage"
	"github.com/mmynk/splitsync/internal/storage/memory"
	"github.com/mmynk/splitsync/internal/storage/postgres"
	"github.com/mmynk/splitsync/internal/storage/sqlite"
)

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", cfg.Driver, "database", cfg.SQLitePath)
		return store, nil

	case config.DriverPostgres:
		store, err := postgres.New(ctx, postgres.Config{DSN: cfg.PostgresDSN, MaxConns: cfg.PostgresMaxConns})
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", cfg.Driver, "max_conns", cfg.PostgresMaxConns)
		return store, nil

	case config.DriverMemory:
		slog.Warn("Storage initialized in memory; ledgers are lost on exit", "driver", cfg.Driver)
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
