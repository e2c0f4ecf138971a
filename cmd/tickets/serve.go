package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/boxoffice/tickets/internal/app"
	"github.com/boxoffice/tickets/internal/cache"
	"github.com/boxoffice/tickets/internal/clock"
	"github.com/boxoffice/tickets/internal/config"
	transporthttp "github.com/boxoffice/tickets/internal/transport/http"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := setup(cmd, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Store.Driver).Msg("open store")
		return err
	}
	defer be.close()

	eventCache := openCache(ctx, cfg.Cache, logger)
	if eventCache != nil {
		defer eventCache.Close()
	}

	handler, err := buildHandler(ctx, cfg, be, eventCache, logger)
	if err != nil {
		logger.Error().Err(err).Msg("build services")
		return err
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  2 * cfg.Server.ReadTimeout,
	}

	logger.Info().Str("addr", server.Addr).Str("driver", cfg.Store.Driver).Msg("api listening")

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received, stopping server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// openCache returns nil when no Redis URL is configured or Redis is down.
func openCache(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) *cache.RedisEventCache {
	if cfg.RedisURL == "" {
		return nil
	}
	c, err := cache.Dial(ctx, cfg.RedisURL, cfg.TTL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, continuing without event cache")
		return nil
	}
	logger.Info().Dur("ttl", cfg.TTL).Msg("event cache enabled")
	return c
}

func buildHandler(ctx context.Context, cfg config.Config, be *backend, eventCache *cache.RedisEventCache, logger zerolog.Logger) (http.Handler, error) {
	purchaseOpts := []app.PurchaseServiceOption{
		app.WithPurchaseLogger(logger.With().Str("component", "purchase").Logger()),
		app.WithRetryPolicy(app.RetryPolicy{
			MaxRetries:      cfg.Purchase.MaxRetries,
			InitialInterval: cfg.Purchase.InitialBackoff,
			MaxInterval:     cfg.Purchase.MaxBackoff,
		}),
	}
	catalogOpts := []app.CatalogServiceOption{
		app.WithCatalogLogger(logger.With().Str("component", "catalog").Logger()),
	}
	var invalidator app.EventInvalidator
	if eventCache != nil {
		purchaseOpts = append(purchaseOpts, app.WithEventInvalidator(eventCache))
		catalogOpts = append(catalogOpts, app.WithEventCache(eventCache))
		invalidator = eventCache
	}

	admin := app.NewAdminService(be.store, invalidator,
		app.WithAdminLogger(logger.With().Str("component", "admin").Logger()))
	if cfg.Store.Seed {
		if err := seed(ctx, admin, logger); err != nil {
			return nil, err
		}
	}

	return transporthttp.NewRouter(transporthttp.Services{
		Catalog:  app.NewCatalogService(be.store, catalogOpts...),
		Purchase: app.NewPurchaseService(be.store, clock.NewSystem(), purchaseOpts...),
		Admin:    admin,
		Health:   be.health,
	}, cfg.CORS.Origins, logger.With().Str("component", "http").Logger()), nil
}
