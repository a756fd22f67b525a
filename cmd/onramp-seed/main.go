// Package main provides the Onramp catalog importer, a one-shot command that
// loads template definitions from a directory into the store.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/onramp/pkg/catalog"
	"github.com/dukex/onramp/pkg/cmd"
	"github.com/dukex/onramp/pkg/log"
	"github.com/dukex/onramp/pkg/reconcile"
	"github.com/dukex/onramp/pkg/services"
)

func main() {
	logger := log.WithModule("onramp-seed")

	cmd := &cli.Command{
		Name:                  "onramp-seed",
		Usage:                 "Import template definitions into the store",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Store connection URL (memory:// or postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Directory holding *.json template definitions",
				Value:   "./catalog",
				Sources: cli.EnvVars("CATALOG_DIR"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			client, err := cmd.NewStore(ctx, logger, command.String("database-url"), nil)
			if err != nil {
				return err
			}

			defer func() {
				if err := client.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close store client", "error", err)
				}
			}()

			engine := reconcile.New(client, logger)
			templates := services.NewTemplates(client, logger, engine)
			importer := catalog.NewImporter(templates, logger)

			result, err := importer.ImportDir(ctx, command.String("dir"))
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Catalog import finished",
				"created", result.Created, "updated", result.Updated, "failed", len(result.Failed))

			if result.Updated > 0 {
				// Updated templates fan out to dependents on a detached path
				// that a one-shot command may outrun. Resync synchronously
				// before exit.
				all, err := templates.List(ctx)
				if err != nil {
					return err
				}

				for _, tmpl := range all {
					if _, err := engine.SyncTemplate(ctx, &tmpl); err != nil {
						logger.ErrorContext(ctx, "Failed to reconcile onboardings",
							"template_id", tmpl.ID, "error", err)
					}
				}
			}

			if len(result.Failed) > 0 {
				return fmt.Errorf("%d template definitions failed to import", len(result.Failed))
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
