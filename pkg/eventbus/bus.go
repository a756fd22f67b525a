// Package eventbus carries collection change notifications between store
// writers and feed consumers. Deployments pick a transport: the in-memory
// watermill channel for tests and single-process setups, kafka for CDC-style
// pipelines, or redis pub/sub where the database's own notification channel
// is unavailable.
package eventbus

import (
	"context"

	"github.com/dukex/onramp/pkg/store"
)

// TopicPrefix namespaces change topics/channels across every transport.
const TopicPrefix = "onramp.changes."

// TopicFor returns the transport topic for one collection's change events.
func TopicFor(collection string) string {
	return TopicPrefix + collection
}

// Bus publishes and subscribes collection change events. Subscribe returns a
// store.Feed so a bus can back a store adapter's OpenChangeFeed directly.
type Bus interface {
	Publish(ctx context.Context, event store.ChangeEvent) error
	Subscribe(ctx context.Context, collection string) (store.Feed, error)
	Close() error
}
