package cmd

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewStore_Memory(t *testing.T) {
	client, err := NewStore(t.Context(), testLogger(), "memory://", nil)
	require.NoError(t, err)
	require.NotNil(t, client)

	require.NoError(t, client.Close(t.Context()))
}

func TestNewStore_UnsupportedScheme(t *testing.T) {
	client, err := NewStore(t.Context(), testLogger(), "mysql://localhost/onramp", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store scheme")
	assert.Nil(t, client)
}

func TestNewStore_MissingScheme(t *testing.T) {
	client, err := NewStore(t.Context(), testLogger(), "localhost:5432", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no scheme")
	assert.Nil(t, client)
}

func TestNewFeedBus_None(t *testing.T) {
	bus, err := NewFeedBus(t.Context(), testLogger(), BusConfig{})
	require.NoError(t, err)
	assert.Nil(t, bus)
}

func TestNewFeedBus_GoChannel(t *testing.T) {
	bus, err := NewFeedBus(t.Context(), testLogger(), BusConfig{Provider: "gochannel"})
	require.NoError(t, err)
	require.NotNil(t, bus)

	require.NoError(t, bus.Close())
}

func TestNewFeedBus_UnsupportedProvider(t *testing.T) {
	bus, err := NewFeedBus(t.Context(), testLogger(), BusConfig{Provider: "rabbitmq"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported event bus provider")
	assert.Nil(t, bus)
}
