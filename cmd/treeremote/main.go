package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/treeremote/internal/config"
)

func main() {
	os.Exit(execute(newRootCmd()))
}

// execute runs cmd and logs the error it returns. It yields the exit code.
func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("treeremote failed")
		return 1
	}
	return 0
}

// cli carries state shared by all subcommands.
type cli struct {
	configPath string
	cfg        *config.Config
}

func (c *cli) configDir() string {
	return filepath.Dir(c.configPath)
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "treeremote",
		Short:         "Remote control for a networked light tree",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				log.Error().Err(err).Str("config", c.configPath).Msg("Failed to load configuration")
				return err
			}
			c.cfg = cfg
			setupLogging(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)
			if parseLevel(cfg.Log.Level) != zerolog.DebugLevel {
				gin.SetMode(gin.ReleaseMode)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "config.yaml", "Path to configuration file")

	serve := newServeCmd(c)
	root.RunE = serve.RunE
	root.AddCommand(serve, newStatusCmd(c), newRunCmd(c))

	return root
}

func setupLogging(out io.Writer, level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	zerolog.SetGlobalLevel(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
