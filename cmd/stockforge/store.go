package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/StockForge/internal/adapter/memory"
	"github.com/Strob0t/StockForge/internal/adapter/postgres"
	"github.com/Strob0t/StockForge/internal/config"
	"github.com/Strob0t/StockForge/internal/port/database"
)

// openedStore is the configured Store plus its teardown and health probe.
type openedStore struct {
	store database.Store
	ping  func(ctx context.Context) error
	close func()
}

// openStore connects the storage driver selected by cfg. With migrate set the
// postgres schema is brought up to date first.
func openStore(ctx context.Context, cfg *config.Config, migrate bool) (*openedStore, error) {
	switch cfg.Storage.Driver {
	case "memory":
		slog.Warn("using in-memory store; data is lost on restart and locks are process-local")
		return &openedStore{store: memory.NewStore(cfg.Postgres.LockTimeout), close: func() {}}, nil
	case "postgres":
		if migrate {
			if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
				return nil, fmt.Errorf("migrations: %w", err)
			}
			slog.Info("migrations applied")
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		slog.Info("postgres connected", "max_conns", cfg.Postgres.MaxConns)
		s := postgres.NewStore(pool, cfg.Postgres.LockTimeout)
		return &openedStore{store: s, ping: s.Ping, close: pool.Close}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
