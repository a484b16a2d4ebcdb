package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/splitledger/config"
	"github.com/warp/splitledger/store/postgres"
	"github.com/warp/splitledger/store/sqlite"
	"github.com/warp/splitledger/store/sqlstore"
)

// openStore connects to the configured database and migrates it.
func openStore(ctx context.Context, db config.DatabaseConfig) (*sqlstore.Store, error) {
	switch db.Driver {
	case "sqlite":
		slog.Info("opening database", "driver", db.Driver, "path", db.Path)
		st, err := sqlite.New(ctx, db.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return st, nil
	case postgres.DriverPQ, postgres.DriverPGX:
		slog.Info("opening database", "driver", db.Driver)
		st, err := postgres.New(ctx, postgres.Config{
			Driver:       db.Driver,
			DSN:          db.DSN,
			MaxOpenConns: db.MaxOpenConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", db.Driver)
	}
}
