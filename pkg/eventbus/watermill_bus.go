package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dukex/onramp/pkg/store"
)

// WatermillBus adapts any watermill publisher/subscriber pair (gochannel,
// kafka) to the Bus interface. Events travel as JSON message payloads, one
// topic per collection.
type WatermillBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

func NewWatermillBus(publisher message.Publisher, subscriber message.Subscriber, logger *slog.Logger) *WatermillBus {
	return &WatermillBus{
		publisher:  publisher,
		subscriber: subscriber,
		logger:     logger.With("module", "eventbus"),
	}
}

func (b *WatermillBus) Publish(_ context.Context, event store.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("collection", event.Collection)
	msg.Metadata.Set("op", string(event.Op))

	if err := b.publisher.Publish(TopicFor(event.Collection), msg); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}

	return nil
}

// Subscribe opens a feed of change events for one collection. The feed stays
// open until it is closed or ctx is cancelled.
func (b *WatermillBus) Subscribe(ctx context.Context, collection string) (store.Feed, error) {
	subCtx, cancel := context.WithCancel(ctx)

	messages, err := b.subscriber.Subscribe(subCtx, TopicFor(collection))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to collection %s: %w", collection, err)
	}

	feed := store.NewFeedStream(func() { cancel() })

	go func() {
		defer feed.Finish()

		for msg := range messages {
			var event store.ChangeEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				b.logger.Error("Failed to unmarshal change event", "error", err, "message_id", msg.UUID)
				msg.Ack()
				continue
			}

			feed.Deliver(event)
			msg.Ack()
		}
	}()

	return feed, nil
}

func (b *WatermillBus) Close() error {
	if err := b.publisher.Close(); err != nil {
		return fmt.Errorf("failed to close publisher: %w", err)
	}

	if err := b.subscriber.Close(); err != nil {
		return fmt.Errorf("failed to close subscriber: %w", err)
	}

	return nil
}
