package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/treeremote/internal/app"
)

func newRunCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run <script.lua>",
		Short: "Run a Lua script against the tree and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := app.NewServices(c.cfg, c.configDir())
			if err != nil {
				return err
			}
			defer services.Close()

			ctx := app.SignalContext()

			// Load bounds and schedule so speed and schedule calls work
			if _, err := services.Controller.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("Initial refresh failed")
			}

			return services.Lua.Runtime.LoadScript(ctx, args[0])
		},
	}
}
