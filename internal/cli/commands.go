package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/npc_registry/internal/identity_store"
	"github.com/lewisedginton/npc_registry/internal/server"
	"github.com/lewisedginton/npc_registry/internal/turn"
	"github.com/lewisedginton/npc_registry/pkg/logger"
	"github.com/lewisedginton/npc_registry/pkg/prefixed_uuid"
)

func sessionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "session",
		Aliases: []string{"s"},
		Usage:   "Session id; empty uses the active session, _default the default document",
	}
}

// ConfigCommand returns a command for configuration operations
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration operations",
		Subcommands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Validate configuration",
				Action: configValidateAction,
			},
		},
	}
}

func configValidateAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	log.Info("Validating configuration")

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Error("Configuration validation failed", logger.ErrorField(err))
		return err
	}
	cfg.LogConfig(log)

	log.Info("Configuration validation passed")
	fmt.Fprintln(ctx.App.Writer, "Configuration is valid")
	return nil
}

// ServeCommand runs the HTTP API until interrupted
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Action: func(ctx *cli.Context) error {
			return withRuntime(ctx, func(rt *runtime) error {
				rt.cfg.LogConfig(rt.log)

				srv, err := server.New(server.Config{
					HTTP:               rt.cfg.HTTP,
					Metrics:            rt.cfg.Metrics,
					HealthCheckTimeout: rt.cfg.HealthCheckTimeout,
					Processor:          rt.processor,
					Sessions:           rt.sessions,
					Storage:            rt.storage,
					Collector:          rt.metrics,
					Logger:             rt.log,
				})
				if err != nil {
					return fmt.Errorf("failed to create server: %w", err)
				}

				runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return srv.Run(runCtx)
			})
		},
	}
}

// IngestCommand applies one extraction payload
func IngestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Apply an extraction payload read from a file or stdin",
		Flags: []cli.Flag{
			sessionFlag(),
			&cli.StringFlag{
				Name:  "message-id",
				Usage: "Message id recorded on touched NPCs; generated when empty",
			},
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Payload file, - or empty for stdin",
			},
		},
		Action: func(ctx *cli.Context) error {
			payload, err := readInput(ctx, ctx.String("file"))
			if err != nil {
				return err
			}
			messageID := strings.TrimSpace(ctx.String("message-id"))
			if messageID == "" {
				messageID = prefixed_uuid.New("turn").String()
			}

			return withRuntime(ctx, func(rt *runtime) error {
				report, err := rt.processor.ProcessTurn(ctx.Context, turn.TurnInput{
					SessionID: ctx.String("session"),
					MessageID: messageID,
					Payload:   payload,
					Source:    "cli",
				})
				if err != nil {
					return err
				}
				return writeJSON(ctx.App.Writer, report)
			})
		},
	}
}

// SearchCommand lists NPCs of a session
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:    "search",
		Aliases: []string{"ls"},
		Usage:   "List NPCs matching a name substring",
		Flags: []cli.Flag{
			sessionFlag(),
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Case-sensitive name substring",
			},
			&cli.StringFlag{
				Name:  "sort",
				Value: string(identity_store.SortByLastSeen),
				Usage: "Sort key (lastSeen, name, appearCount)",
			},
			&cli.StringFlag{
				Name:  "order",
				Value: "desc",
				Usage: "Sort order (asc, desc)",
			},
		},
		Action: func(ctx *cli.Context) error {
			opts := identity_store.SearchOptions{
				Query:     ctx.String("query"),
				SortBy:    identity_store.ParseSortKey(ctx.String("sort")),
				Ascending: strings.EqualFold(ctx.String("order"), "asc"),
			}
			return withRuntime(ctx, func(rt *runtime) error {
				npcs, err := rt.processor.Search(ctx.Context, ctx.String("session"), opts)
				if err != nil {
					return err
				}
				return writeJSON(ctx.App.Writer, npcs)
			})
		},
	}
}

// ExportCommand writes a session document
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export a session's identity document",
		Flags: []cli.Flag{
			sessionFlag(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file; stdout when empty",
			},
		},
		Action: func(ctx *cli.Context) error {
			return withRuntime(ctx, func(rt *runtime) error {
				data, err := rt.processor.Export(ctx.Context, ctx.String("session"))
				if err != nil {
					return err
				}
				if path := ctx.String("output"); path != "" {
					if err := os.WriteFile(path, data, 0o600); err != nil {
						return fmt.Errorf("failed to write export: %w", err)
					}
					rt.log.Info("Exported identity document", logger.StringField("path", path))
					return nil
				}
				_, err = fmt.Fprintln(ctx.App.Writer, string(data))
				return err
			})
		},
	}
}

// ImportCommand replaces a session document
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Replace a session's identity document (JSON or JSON5)",
		Flags: []cli.Flag{
			sessionFlag(),
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Document file, - or empty for stdin",
			},
		},
		Action: func(ctx *cli.Context) error {
			data, err := readInput(ctx, ctx.String("file"))
			if err != nil {
				return err
			}
			return withRuntime(ctx, func(rt *runtime) error {
				n, err := rt.processor.Import(ctx.Context, ctx.String("session"), data)
				if err != nil {
					return err
				}
				fmt.Fprintf(ctx.App.Writer, "Imported %d NPCs\n", n)
				return nil
			})
		},
	}
}

// DeleteCommand removes one NPC by id
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete an NPC by id",
		ArgsUsage: "<npc-id>",
		Flags:     []cli.Flag{sessionFlag()},
		Action: func(ctx *cli.Context) error {
			id := strings.TrimSpace(ctx.Args().First())
			if id == "" {
				return fmt.Errorf("npc id is required")
			}
			return withRuntime(ctx, func(rt *runtime) error {
				deleted, err := rt.processor.Delete(ctx.Context, ctx.String("session"), id)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("npc %s not found", id)
				}
				fmt.Fprintf(ctx.App.Writer, "Deleted %s\n", id)
				return nil
			})
		},
	}
}

// CleanupCommand drops placeholder-named NPCs
func CleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Remove NPCs whose name is a bare slot token",
		Flags: []cli.Flag{sessionFlag()},
		Action: func(ctx *cli.Context) error {
			return withRuntime(ctx, func(rt *runtime) error {
				n, err := rt.processor.Cleanup(ctx.Context, ctx.String("session"))
				if err != nil {
					return err
				}
				fmt.Fprintf(ctx.App.Writer, "Removed %d NPCs\n", n)
				return nil
			})
		},
	}
}

func readInput(ctx *cli.Context, path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(ctx.App.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
