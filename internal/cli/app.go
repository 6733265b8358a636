// Package cli wires the registry into a urfave/cli application.
package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/npc_registry/internal/config"
	"github.com/lewisedginton/npc_registry/pkg/logger"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

const serviceName = "npc-registry"

// NewApp builds the npc-registry command line application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    serviceName,
		Usage:   "Track the NPCs of narrative chat sessions",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "Log format (json, text)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "config-file",
				Value:   "",
				Usage:   "Path to configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: func(ctx *cli.Context) error {
			// command output goes to Writer, logs to ErrWriter
			log := logger.NewLogger(logger.Config{
				Level:   logger.ParseLevel(ctx.String("log-level")),
				Format:  ctx.String("log-format"),
				Service: serviceName,
				Output:  ctx.App.ErrWriter,
			})

			ctx.App.Metadata = map[string]interface{}{
				"logger": log,
			}
			return nil
		},
		Commands: []*cli.Command{
			ConfigCommand(),
			ServeCommand(),
			IngestCommand(),
			SearchCommand(),
			ExportCommand(),
			ImportCommand(),
			DeleteCommand(),
			CleanupCommand(),
		},
	}
}

// getLogger retrieves the logger from the CLI context metadata
func getLogger(ctx *cli.Context) logger.Logger {
	if ctx.App.Metadata != nil {
		if log, ok := ctx.App.Metadata["logger"].(logger.Logger); ok {
			return log
		}
	}

	return logger.NewLogger(logger.Config{
		Level:   logger.InfoLevel,
		Format:  "json",
		Service: serviceName,
		Output:  ctx.App.ErrWriter,
	})
}

func loadConfig(ctx *cli.Context) (*config.AppConfig, error) {
	cfg, err := config.Load(ctx.String("config-file"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// withRuntime loads configuration, wires the registry and hands it to fn.
func withRuntime(ctx *cli.Context, fn func(rt *runtime) error) error {
	log := getLogger(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx.Context, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	return fn(rt)
}
