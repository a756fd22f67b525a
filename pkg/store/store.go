// Package store defines the client boundary to the remote collection store:
// record CRUD per collection plus a best-effort change-notification feed.
// Onramp never implements the store itself; adapters under store/ connect to
// a concrete backend (memory for tests and development, postgres for real
// deployments).
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Row is one record as the store returns it: a JSON-shaped field map.
type Row map[string]any

// Filter selects rows by field equality. A nil or empty filter matches every
// row. Values are compared after JSON numeric normalization, so filtering on
// an int matches a row field decoded as float64.
type Filter map[string]any

// Query describes a read against one collection.
type Query struct {
	Collection string
	Columns    []string // projection; nil selects every column
	Filter     Filter
	OrderBy    string
	Descending bool
	Limit      int // 0 means no limit
}

// Change feed operations. Advisory only: events are wake-up signals, their
// payload carries no delivery guarantees.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ChangeEvent signals that something changed in a collection. Consumers
// re-fetch on receipt; they never apply the event itself. Row is the affected
// record when the adapter can cheaply include it — there is no delivery
// guarantee on it, and feed filtering falls back to over-delivery when it is
// absent.
type ChangeEvent struct {
	Collection string `json:"collection"`
	Op         string `json:"op,omitempty"`
	Row        Row    `json:"row,omitempty"`
}

// Feed is a live change-notification stream for one collection.
type Feed interface {
	// Events yields change signals until the feed is closed, at which point
	// the channel is closed.
	Events() <-chan ChangeEvent

	// Close stops the feed and releases its upstream registration. Close is
	// idempotent.
	Close() error
}

// Client is the remote collection store. All calls are synchronous from the
// caller's perspective and honor ctx cancellation; the store imposes no
// retries of its own.
type Client interface {
	// Query returns rows matching q. No matches is an empty slice, not an
	// error.
	Query(ctx context.Context, q Query) ([]Row, error)

	// QueryOne returns the single row matching q, or ErrNotFound.
	QueryOne(ctx context.Context, q Query) (Row, error)

	// Insert stores rows and returns them as persisted (ids and timestamps
	// filled in by the backend where applicable).
	Insert(ctx context.Context, collection string, rows []Row) ([]Row, error)

	// Update applies patch to every row matching filter.
	Update(ctx context.Context, collection string, filter Filter, patch Row) error

	// Delete removes every row matching filter.
	Delete(ctx context.Context, collection string, filter Filter) error

	// OpenChangeFeed starts a change-notification stream for one collection.
	// filter narrows which rows wake the feed where the backend supports it;
	// backends may ignore it and over-deliver (feeds are best-effort,
	// at-least-once).
	OpenChangeFeed(ctx context.Context, collection string, filter Filter) (Feed, error)

	Close(ctx context.Context) error
}

// DecodeRow maps a row onto an entity through a JSON round-trip. Instantiated
// per entity type, it is the standard row-to-entity mapper handed to a record
// service.
func DecodeRow[T any](row Row) (T, error) {
	var entity T

	data, err := json.Marshal(row)
	if err != nil {
		return entity, fmt.Errorf("failed to encode row: %w", err)
	}

	if err := json.Unmarshal(data, &entity); err != nil {
		return entity, fmt.Errorf("failed to decode row: %w", err)
	}

	return entity, nil
}

// EncodeRow maps an entity to a row through a JSON round-trip.
func EncodeRow(entity any) (Row, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity: %w", err)
	}

	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("failed to decode entity into row: %w", err)
	}

	return row, nil
}

// Matches reports whether row satisfies every equality condition in f.
func (f Filter) Matches(row Row) bool {
	for field, want := range f {
		if !valuesEqual(row[field], want) {
			return false
		}
	}

	return true
}

// valuesEqual compares two field values, normalizing numerics so that values
// which crossed a JSON boundary (always float64) still match native ints.
func valuesEqual(got, want any) bool {
	if gotNum, ok := asFloat(got); ok {
		if wantNum, ok := asFloat(want); ok {
			return gotNum == wantNum
		}

		return false
	}

	return got == want
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}
