package main

import (
	"github.com/boxoffice/tickets/internal/config"
	"github.com/boxoffice/tickets/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	driver     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "tickets",
		Short:         "Box office API for event ticket inventory",
		Long:          "Serves event listings and sells tickets without overselling any event.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a config file (default ./config.yaml when present)")
	cmd.PersistentFlags().StringVar(&opts.driver, "driver", "", "store driver: postgres, sqlite or memory")

	cmd.AddCommand(newServeCmd(opts), newMigrateCmd(opts))
	return cmd
}

// setup loads configuration and builds the logger shared by every command.
func setup(cmd *cobra.Command, opts *rootOptions) (config.Config, zerolog.Logger, error) {
	cfg, envPath, err := config.Load(opts.configFile)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	if opts.driver != "" {
		cfg.Store.Driver = opts.driver
		if err := cfg.Validate(); err != nil {
			return config.Config{}, zerolog.Nop(), err
		}
	}

	logger, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	if envPath != "" {
		logger.Info().Str("path", envPath).Msg("loaded env file")
	}
	return cfg, logger, nil
}
