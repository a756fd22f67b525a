package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/dukex/onramp/pkg/channels/gochannel"
	"github.com/dukex/onramp/pkg/channels/kafka"
	"github.com/dukex/onramp/pkg/eventbus"
)

// BusConfig selects the change bus transport for a binary.
type BusConfig struct {
	// Provider is one of "", "gochannel", "kafka" or "redis". Empty means no
	// external bus: the store serves change feeds natively.
	Provider string
	// ServiceName names the kafka consumer group (prefixed with "cg-").
	ServiceName string

	KafkaBrokers []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewFeedBus builds the change bus for cfg. A nil bus with a nil error means
// the deployment runs on the store's own feed channel.
func NewFeedBus(ctx context.Context, logger *slog.Logger, cfg BusConfig) (eventbus.Bus, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillBus(pub, sub, logger), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), cfg.KafkaBrokers, cfg.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillBus(pub, sub, logger), nil
	case "redis":
		bus, err := eventbus.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis bus: %w", err)
		}

		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider %q (supported: gochannel, kafka, redis)", cfg.Provider)
	}
}
