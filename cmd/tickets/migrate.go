package main

import (
	"github.com/boxoffice/tickets/internal/app"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema and seed sample events, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			be, err := openStore(cmd.Context(), cfg.Store, logger)
			if err != nil {
				logger.Error().Err(err).Str("driver", cfg.Store.Driver).Msg("open store")
				return err
			}
			defer be.close()

			if cfg.Store.Seed {
				if err := seed(cmd.Context(), app.NewAdminService(be.store, nil), logger); err != nil {
					logger.Error().Err(err).Msg("seed")
					return err
				}
			}
			logger.Info().Str("driver", cfg.Store.Driver).Msg("store is up to date")
			return nil
		},
	}
}
