// Package memory implements the store client on in-process maps. It backs
// tests and local development; change feeds run over an in-memory watermill
// channel and carry full row payloads, so feed filters match precisely.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"

	"github.com/dukex/onramp/pkg/channels/gochannel"
	"github.com/dukex/onramp/pkg/eventbus"
	"github.com/dukex/onramp/pkg/store"
)

type Store struct {
	logger *slog.Logger
	bus    eventbus.Bus

	mu          sync.RWMutex
	closed      bool
	collections map[string][]store.Row
}

var _ store.Client = (*Store)(nil)

func NewStore(logger *slog.Logger) (*Store, error) {
	publisher, subscriber, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create change channel: %w", err)
	}

	return &Store{
		logger:      logger.With("module", "store.memory"),
		bus:         eventbus.NewWatermillBus(publisher, subscriber, logger),
		collections: make(map[string][]store.Row),
	}, nil
}

func (s *Store) Query(_ context.Context, q store.Query) ([]store.Row, error) {
	s.mu.RLock()

	if s.closed {
		s.mu.RUnlock()
		return nil, store.ErrClosed
	}

	matched := []store.Row{}

	for _, row := range s.collections[q.Collection] {
		if q.Filter.Matches(row) {
			matched = append(matched, copyRow(row))
		}
	}

	s.mu.RUnlock()

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			if q.Descending {
				return lessValue(matched[j][q.OrderBy], matched[i][q.OrderBy])
			}

			return lessValue(matched[i][q.OrderBy], matched[j][q.OrderBy])
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	if q.Columns != nil {
		for i, row := range matched {
			matched[i] = projectRow(row, q.Columns)
		}
	}

	return matched, nil
}

func (s *Store) QueryOne(ctx context.Context, q store.Query) (store.Row, error) {
	q.Limit = 1

	rows, err := s.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}

	return rows[0], nil
}

func (s *Store) Insert(ctx context.Context, collection string, rows []store.Row) ([]store.Row, error) {
	normalized := make([]store.Row, 0, len(rows))

	for _, row := range rows {
		norm, err := normalizeRow(row)
		if err != nil {
			return nil, err
		}

		if id, _ := norm["id"].(string); id == "" {
			rowID, err := uuid.NewV7()
			if err != nil {
				return nil, fmt.Errorf("failed to generate row id: %w", err)
			}

			norm["id"] = rowID.String()
		}

		normalized = append(normalized, norm)
	}

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return nil, store.ErrClosed
	}

	persisted := make([]store.Row, 0, len(normalized))

	for _, row := range normalized {
		s.collections[collection] = append(s.collections[collection], row)
		persisted = append(persisted, copyRow(row))
	}

	s.mu.Unlock()

	for _, row := range persisted {
		s.notify(ctx, store.ChangeEvent{Collection: collection, Op: store.OpInsert, Row: row})
	}

	return persisted, nil
}

func (s *Store) Update(ctx context.Context, collection string, filter store.Filter, patch store.Row) error {
	normalizedPatch, err := normalizeRow(patch)
	if err != nil {
		return err
	}

	var updated []store.Row

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}

	for i, row := range s.collections[collection] {
		if !filter.Matches(row) {
			continue
		}

		merged := copyRow(row)
		for field, value := range normalizedPatch {
			merged[field] = copyValue(value)
		}

		s.collections[collection][i] = merged
		updated = append(updated, copyRow(merged))
	}

	s.mu.Unlock()

	for _, row := range updated {
		s.notify(ctx, store.ChangeEvent{Collection: collection, Op: store.OpUpdate, Row: row})
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, collection string, filter store.Filter) error {
	var removed []store.Row

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}

	var kept []store.Row

	for _, row := range s.collections[collection] {
		if filter.Matches(row) {
			removed = append(removed, row)
			continue
		}

		kept = append(kept, row)
	}

	s.collections[collection] = kept

	s.mu.Unlock()

	for _, row := range removed {
		s.notify(ctx, store.ChangeEvent{Collection: collection, Op: store.OpDelete, Row: copyRow(row)})
	}

	return nil
}

func (s *Store) OpenChangeFeed(ctx context.Context, collection string, filter store.Filter) (store.Feed, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return nil, store.ErrClosed
	}

	feed, err := s.bus.Subscribe(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to open change feed: %w", err)
	}

	return store.FilterFeed(feed, filter), nil
}

func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	s.mu.Unlock()

	return s.bus.Close()
}

// notify publishes a change event after the write already succeeded; a
// notification failure is logged, never surfaced to the writer.
func (s *Store) notify(ctx context.Context, event store.ChangeEvent) {
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish change event",
			"error", err, "collection", event.Collection, "op", event.Op)
	}
}

// normalizeRow passes the row through a JSON round-trip so stored values have
// the same shapes a real backend would return (float64 numbers, string
// timestamps, []any slices).
func normalizeRow(row store.Row) (store.Row, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize row: %w", err)
	}

	var out store.Row
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize row: %w", err)
	}

	return out, nil
}

func copyRow(row store.Row) store.Row {
	out := make(store.Row, len(row))
	for field, value := range row {
		out[field] = copyValue(value)
	}

	return out
}

// copyValue deep-copies a JSON-shaped value. Rows are normalized on the way
// in, so maps, slices and scalars are the only shapes stored.
func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}

		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}

		return out
	default:
		return val
	}
}

func projectRow(row store.Row, columns []string) store.Row {
	out := make(store.Row, len(columns))

	for _, col := range columns {
		if value, ok := row[col]; ok {
			out[col] = value
		}
	}

	return out
}

// lessValue orders two normalized JSON values of the same kind; mixed kinds
// fall back to their string forms.
func lessValue(a, b any) bool {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return !av && bv
		}
	}

	return fmt.Sprint(a) < fmt.Sprint(b)
}
