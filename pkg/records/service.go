// Package records implements the generic read side of one collection: typed
// list/get/delete plus live subscriptions that re-fetch when the collection
// changes. A service is configured once per entity kind with a row mapper and
// an optional realtime block; everything else (coalescing, feed sharing,
// background error policy) is handled here so domain services stay thin.
package records

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/onramp/pkg/debounce"
	"github.com/dukex/onramp/pkg/store"
	"github.com/dukex/onramp/pkg/subscription"
)

const (
	// DefaultLimit caps list reads when the config does not set its own.
	DefaultLimit = 200

	// DefaultCoalesceWindow is how long a subscription waits for a burst of
	// change events to settle before re-fetching.
	DefaultCoalesceWindow = 300 * time.Millisecond
)

// Watch names one collection whose changes should wake a subscription. The
// filter narrows which rows matter where the store can tell; feeds stay
// best-effort either way.
type Watch struct {
	Collection string
	Filter     store.Filter
}

// Realtime enables live updates for a service's subscribers.
type Realtime struct {
	// Channel is the logical feed name used for sharing. Defaults to the
	// service's Kind.
	Channel string

	// Watch lists the collections that wake this subscription. Defaults to
	// the service's own collection, unfiltered.
	Watch []Watch

	// Shared multiplexes all subscribers onto one feed and one coalescing
	// timer.
	Shared bool

	// Window is the coalescing window. Defaults to DefaultCoalesceWindow.
	Window time.Duration
}

// Config describes one collection-backed entity kind.
type Config[T any] struct {
	Collection string
	Columns    []string
	Kind       string // entity-kind label for error messages and sharing
	FromRow    func(store.Row) (T, error)
	Limit      int
	OrderBy    string
	Descending bool
	Realtime   *Realtime
}

// Service reads one collection as typed entities.
type Service[T any] struct {
	client store.Client
	logger *slog.Logger
	cfg    Config[T]
	mux    *subscription.Multiplexer[[]T]
}

func NewService[T any](client store.Client, logger *slog.Logger, cfg Config[T]) *Service[T] {
	if cfg.Kind == "" {
		cfg.Kind = cfg.Collection
	}

	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}

	if cfg.Realtime != nil {
		if cfg.Realtime.Channel == "" {
			cfg.Realtime.Channel = cfg.Kind
		}

		if len(cfg.Realtime.Watch) == 0 {
			cfg.Realtime.Watch = []Watch{{Collection: cfg.Collection}}
		}

		if cfg.Realtime.Window <= 0 {
			cfg.Realtime.Window = DefaultCoalesceWindow
		}
	}

	service := &Service[T]{
		client: client,
		logger: logger.With("module", "records", "kind", cfg.Kind),
		cfg:    cfg,
	}

	if cfg.Realtime != nil && cfg.Realtime.Shared {
		service.mux = subscription.NewMultiplexer[[]T]()
	}

	return service
}

// Kind returns the entity-kind label the service was configured with.
func (s *Service[T]) Kind() string {
	return s.cfg.Kind
}

// List returns up to the configured limit of entities. An empty collection
// yields an empty slice, not an error.
func (s *Service[T]) List(ctx context.Context) ([]T, error) {
	rows, err := s.client.Query(ctx, store.Query{
		Collection: s.cfg.Collection,
		Columns:    s.cfg.Columns,
		OrderBy:    s.cfg.OrderBy,
		Descending: s.cfg.Descending,
		Limit:      s.cfg.Limit,
	})
	if err != nil {
		return nil, NewFetchError(s.cfg.Kind, err)
	}

	entities := make([]T, 0, len(rows))

	for _, row := range rows {
		entity, err := s.cfg.FromRow(row)
		if err != nil {
			return nil, NewFetchError(s.cfg.Kind, err)
		}

		entities = append(entities, entity)
	}

	return entities, nil
}

// Get fetches one entity by id. Absence is a valid result, reported through
// the boolean, never as an error.
func (s *Service[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T

	row, err := s.client.QueryOne(ctx, store.Query{
		Collection: s.cfg.Collection,
		Columns:    s.cfg.Columns,
		Filter:     store.Filter{"id": id},
	})
	if err != nil {
		if store.IsNotFound(err) {
			return zero, false, nil
		}

		return zero, false, NewFetchError(s.cfg.Kind, err)
	}

	entity, err := s.cfg.FromRow(row)
	if err != nil {
		return zero, false, NewFetchError(s.cfg.Kind, err)
	}

	return entity, true, nil
}

// Remove deletes one entity by id.
func (s *Service[T]) Remove(ctx context.Context, id string) error {
	if err := s.client.Delete(ctx, s.cfg.Collection, store.Filter{"id": id}); err != nil {
		return NewDeleteError(s.cfg.Kind, id, err)
	}

	return nil
}

// Subscribe delivers the current entity list to onData and re-delivers after
// every settled burst of changes in the watched collections. Without a
// realtime config it is a no-op and the returned unsubscribe does nothing —
// a valid configuration, callers must tolerate it.
//
// Refresh errors are logged and never stop the subscription; subscribers see
// silence, not an error callback. Unsubscribing cancels the pending coalesce
// and closes the feeds, but lets an already-dispatched fetch finish — its
// result is then discarded without a sound.
func (s *Service[T]) Subscribe(ctx context.Context, onData func([]T)) (unsubscribe func()) {
	if s.cfg.Realtime == nil {
		return func() {}
	}

	if s.mux != nil {
		return s.mux.Subscribe(s.cfg.Realtime.Channel, func(broadcast func([]T)) func() {
			return s.openSubscription(ctx, broadcast)
		}, onData)
	}

	return s.openSubscription(ctx, onData)
}

// openSubscription wires one live subscription: feeds on every watched
// collection, a shared coalescing timer, and an immediate initial snapshot.
// deliver receives every refreshed list; the returned stop tears it all down.
func (s *Service[T]) openSubscription(ctx context.Context, deliver func([]T)) (stop func()) {
	var (
		mu        sync.Mutex
		dead      bool
		refreshMu sync.Mutex
	)

	alive := func() bool {
		mu.Lock()
		defer mu.Unlock()

		return !dead
	}

	refresh := func() {
		refreshMu.Lock()
		defer refreshMu.Unlock()

		if !alive() {
			return
		}

		entities, err := s.List(ctx)

		if !alive() {
			// The subscription ended while the fetch was in flight. Nobody
			// is listening; drop the result, and don't treat a failed fetch
			// as noteworthy either.
			return
		}

		if err != nil {
			s.logger.Error("Failed to refresh subscription", "error", err)
			return
		}

		deliver(entities)
	}

	coalescer := debounce.New(s.cfg.Realtime.Window, refresh)

	feedCtx, cancelFeeds := context.WithCancel(ctx)
	feeds := make([]store.Feed, 0, len(s.cfg.Realtime.Watch))

	for _, watch := range s.cfg.Realtime.Watch {
		feed, err := s.client.OpenChangeFeed(feedCtx, watch.Collection, watch.Filter)
		if err != nil {
			s.logger.Error("Failed to open change feed",
				"collection", watch.Collection, "error", err)

			continue
		}

		feeds = append(feeds, feed)

		go func() {
			for range feed.Events() {
				coalescer.Trigger()
			}
		}()
	}

	// Initial snapshot: immediate and uncoalesced, but still on the
	// detached background path.
	go refresh()

	return func() {
		mu.Lock()
		dead = true
		mu.Unlock()

		coalescer.Cancel()
		cancelFeeds()

		for _, feed := range feeds {
			_ = feed.Close()
		}
	}
}
