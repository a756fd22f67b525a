// Package cmd wires shared infrastructure for the onramp binaries: the
// store backend picked from the database URL scheme and the optional
// external change bus.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/onramp/pkg/eventbus"
	"github.com/dukex/onramp/pkg/store"
	"github.com/dukex/onramp/pkg/store/memory"
	"github.com/dukex/onramp/pkg/store/postgres"
)

// NewStore builds the store client for databaseURL. The scheme selects the
// backend: "memory://" keeps everything in process, "postgres://" (or
// "postgresql://") connects to PostgreSQL. A non-nil bus replaces the
// postgres LISTEN/NOTIFY feed with the external transport.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string, bus eventbus.Bus) (store.Client, error) {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return nil, fmt.Errorf("database url %q has no scheme", databaseURL)
	}

	switch scheme {
	case "memory":
		return memory.NewStore(logger)
	case "postgres", "postgresql":
		opts := []postgres.Option{}
		if bus != nil {
			opts = append(opts, postgres.WithBus(bus))
		}

		return postgres.NewClient(ctx, logger, databaseURL, opts...)
	default:
		return nil, fmt.Errorf("unsupported store scheme %q (supported: memory, postgres)", scheme)
	}
}
