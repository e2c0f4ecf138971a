package main

import (
	"context"
	"fmt"
	"time"

	"github.com/boxoffice/tickets/internal/app"
	"github.com/boxoffice/tickets/internal/config"
	"github.com/boxoffice/tickets/internal/storage/memory"
	"github.com/boxoffice/tickets/internal/storage/postgres"
	"github.com/boxoffice/tickets/internal/storage/sqlite"
	transporthttp "github.com/boxoffice/tickets/internal/transport/http"
	"github.com/boxoffice/tickets/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const startupTimeout = 10 * time.Second

type inventoryStore interface {
	app.PurchaseStore
	app.CatalogStore
	app.AdminStore
}

type backend struct {
	store  inventoryStore
	health transporthttp.HealthCheck
	close  func()
}

// openStore connects the configured driver and brings its schema up to date.
func openStore(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (*backend, error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to db: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		applied, err := migrations.Apply(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		for _, name := range applied {
			logger.Info().Str("migration", name).Msg("applied migration")
		}
		return &backend{
			store:  postgres.NewStore(pool, postgres.Options{LockTimeout: cfg.LockTimeout}),
			health: pool.Ping,
			close:  pool.Close,
		}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Warn().Str("path", cfg.SQLitePath).Msg("sqlite store serializes all purchases; use it for local runs only")
		return &backend{
			store:  store,
			health: store.Ping,
			close:  func() { _ = store.Close() },
		}, nil

	case config.DriverMemory:
		logger.Warn().Msg("memory store selected; data is lost on exit")
		return &backend{store: memory.New(), close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func seed(ctx context.Context, admin *app.AdminService, logger zerolog.Logger) error {
	n, err := admin.Seed(ctx)
	if err != nil {
		return fmt.Errorf("seed events: %w", err)
	}
	if n > 0 {
		logger.Info().Int("events", n).Msg("seeded sample events")
	}
	return nil
}
