package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/onramp/pkg/cmd"
	"github.com/dukex/onramp/pkg/log"
	"github.com/dukex/onramp/pkg/otelhelper"
	"github.com/dukex/onramp/pkg/reconcile"
)

const defaultResyncInterval = 10 * time.Minute

func main() {
	logger := log.WithModule("onramp-sync")

	cmd := &cli.Command{
		Name:                  "onramp-sync",
		Usage:                 "Keep onboardings reconciled with their templates",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
			&cli.DurationFlag{
				Name:    "resync-interval",
				Usage:   "How often the full resync sweep runs",
				Value:   defaultResyncInterval,
				Sources: cli.EnvVars("RESYNC_INTERVAL"),
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

			logger.InfoContext(ctx, "Initializing Onramp reconciliation daemon")

			mode := reconcile.Mode(command.String("reconcile-mode"))
			if !reconcile.ValidMode(mode) {
				return fmt.Errorf("invalid reconcile mode %q", command.String("reconcile-mode"))
			}

			tracerProvider, err := otelhelper.InitTracer(ctx, "onramp-sync")
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
				ServiceName:   "sync",
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

			engine := reconcile.New(client, logger,
				reconcile.WithMode(mode),
				reconcile.WithTracer(tracerProvider.Tracer("onramp-sync")),
			)

			syncer := NewSyncer(client, engine, logger, command.Duration("resync-interval"))

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				sig := <-signals
				logger.Info("Received signal", "signal", sig)
				cancel()
			}()

			return syncer.Start(runCtx)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
