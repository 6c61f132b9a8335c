package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/treeremote/internal/app"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll the tree and serve the local control surface (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().Str("config", c.configPath).Msg("Starting treeremote")

			application, err := app.New(c.cfg, c.configDir())
			if err != nil {
				log.Error().Err(err).Msg("Failed to create application")
				return err
			}

			ctx := app.SignalContext()

			if err := application.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to start application")
				application.Stop()
				return err
			}

			application.Wait()

			if err := application.Stop(); err != nil {
				log.Error().Err(err).Msg("Error during shutdown")
				return err
			}
			return nil
		},
	}
}
