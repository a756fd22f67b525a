package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dukex/onramp/pkg/store"
)

// RedisBus carries change events over redis pub/sub. Useful when the store
// itself has no notification channel and processes share a redis anyway.
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBus connects to redis and verifies the connection with a ping.
func NewRedisBus(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisBusFromClient(client, logger), nil
}

// NewRedisBusFromClient wraps an existing client. The caller keeps ownership
// of the client's lifecycle unless Close is used.
func NewRedisBusFromClient(client *redis.Client, logger *slog.Logger) *RedisBus {
	return &RedisBus{
		client: client,
		logger: logger.With("module", "eventbus"),
	}
}

func (b *RedisBus) Publish(ctx context.Context, event store.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if err := b.client.Publish(ctx, TopicFor(event.Collection), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}

	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, collection string) (store.Feed, error) {
	pubsub := b.client.Subscribe(ctx, TopicFor(collection))

	// Wait for the subscription confirmation so no event published after
	// this call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to collection %s: %w", collection, err)
	}

	feed := store.NewFeedStream(func() { _ = pubsub.Close() })

	go func() {
		defer feed.Finish()

		for msg := range pubsub.Channel() {
			var event store.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Error("Failed to unmarshal change event", "error", err, "channel", msg.Channel)
				continue
			}

			feed.Deliver(event)
		}
	}()

	return feed, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
