package eventbus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/onramp/pkg/channels/gochannel"
	"github.com/dukex/onramp/pkg/store"
)

func newTestBus(t *testing.T) *WatermillBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	publisher, subscriber, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := NewWatermillBus(publisher, subscriber, logger)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func waitEvent(t *testing.T, feed store.Feed) store.ChangeEvent {
	t.Helper()

	select {
	case event, ok := <-feed.Events():
		require.True(t, ok, "feed closed before delivering an event")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
		return store.ChangeEvent{}
	}
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "onramp.changes.templates", TopicFor("templates"))
}

func TestWatermillBusPublishSubscribe(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	feed, err := bus.Subscribe(ctx, "templates")
	require.NoError(t, err)
	defer feed.Close()

	published := store.ChangeEvent{
		Collection: "templates",
		Op:         store.OpUpdate,
		Row:        store.Row{"id": "tpl-1", "name": "Engineering"},
	}
	require.NoError(t, bus.Publish(ctx, published))

	event := waitEvent(t, feed)
	assert.Equal(t, "templates", event.Collection)
	assert.Equal(t, store.OpUpdate, event.Op)
	assert.Equal(t, "tpl-1", event.Row["id"])
	assert.Equal(t, "Engineering", event.Row["name"])
}

func TestWatermillBusRowlessEvent(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	feed, err := bus.Subscribe(ctx, "onboardings")
	require.NoError(t, err)
	defer feed.Close()

	require.NoError(t, bus.Publish(ctx, store.ChangeEvent{
		Collection: "onboardings",
		Op:         store.OpDelete,
	}))

	event := waitEvent(t, feed)
	assert.Equal(t, store.OpDelete, event.Op)
	assert.Nil(t, event.Row)
}

func TestWatermillBusCollectionsAreIsolated(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	feed, err := bus.Subscribe(ctx, "templates")
	require.NoError(t, err)
	defer feed.Close()

	require.NoError(t, bus.Publish(ctx, store.ChangeEvent{
		Collection: "onboardings",
		Op:         store.OpInsert,
	}))

	select {
	case event := <-feed.Events():
		t.Fatalf("unexpected event from another collection: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatermillBusFeedClose(t *testing.T) {
	bus := newTestBus(t)

	feed, err := bus.Subscribe(context.Background(), "templates")
	require.NoError(t, err)

	require.NoError(t, feed.Close())

	select {
	case _, ok := <-feed.Events():
		assert.False(t, ok, "events channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not close")
	}
}
