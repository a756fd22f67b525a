package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/onramp/pkg/cmd"
	"github.com/dukex/onramp/pkg/log"
	"github.com/dukex/onramp/pkg/otelhelper"
	"github.com/dukex/onramp/pkg/reconcile"
)

const defaultPort = 9096

func main() {
	logger := log.WithModule("api")

	cmd := &cli.Command{
		Name:                  "onramp-api",
		Usage:                 "Manage onboarding templates and employee onboardings",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Store connection URL (memory:// or postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Change feed transport (gochannel, kafka, redis); empty uses the store's own feeds",
				Sources: cli.EnvVars("FEED_BUS"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka broker addresses for the kafka event bus",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the redis event bus",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password for the redis event bus",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number for the redis event bus",
				Sources: cli.EnvVars("REDIS_DB"),
			},
			&cli.StringFlag{
				Name:    "reconcile-mode",
				Usage:   "How template edits propagate to onboardings (full or additive)",
				Value:   string(reconcile.ModeFull),
				Sources: cli.EnvVars("RECONCILE_MODE"),
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

			logger.InfoContext(ctx, "Initializing Onramp API")

			mode := reconcile.Mode(command.String("reconcile-mode"))
			if !reconcile.ValidMode(mode) {
				return fmt.Errorf("invalid reconcile mode %q", command.String("reconcile-mode"))
			}

			tracerProvider, err := otelhelper.InitTracer(ctx, "onramp-api")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
				}
			}()

			bus, err := cmd.NewFeedBus(ctx, logger, cmd.BusConfig{
				Provider:      command.String("event-bus"),
				ServiceName:   "api",
				KafkaBrokers:  command.StringSlice("kafka-brokers"),
				RedisAddr:     command.String("redis-addr"),
				RedisPassword: command.String("redis-password"),
				RedisDB:       command.Int("redis-db"),
			})
			if err != nil {
				return err
			}

			if bus != nil {
				defer func() {
					if err := bus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()
			}

			client, err := cmd.NewStore(ctx, logger, command.String("database-url"), bus)
			if err != nil {
				return err
			}

			defer func() {
				if err := client.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close store client", "error", err)
				}
			}()

			engine := reconcile.New(client, logger, reconcile.WithMode(mode))

			api := NewAPI(logger, client, engine)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
