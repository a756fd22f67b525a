// Package postgres implements the store client on PostgreSQL. Records live
// as JSONB documents, one table per collection, and change feeds ride the
// database's LISTEN/NOTIFY channel so every writer wakes every listener
// without extra infrastructure. An optional event bus reroutes feeds through
// an external broker for multi-datacenter deployments.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dukex/onramp/pkg/eventbus"
	"github.com/dukex/onramp/pkg/store"
)

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second

	changeChannelPrefix = "onramp_changes_"
)

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Client implements store.Client on PostgreSQL.
type Client struct {
	db     *sql.DB
	dsn    string
	logger *slog.Logger
	bus    eventbus.Bus
}

var _ store.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBus reroutes change feeds through an external event bus instead of
// LISTEN/NOTIFY. Writes then publish their events to the bus, row payload
// included.
func WithBus(bus eventbus.Bus) Option {
	return func(c *Client) {
		c.bus = bus
	}
}

// NewClient connects to PostgreSQL, runs schema migrations, and returns a
// ready client.
func NewClient(ctx context.Context, logger *slog.Logger, databaseURL string, opts ...Option) (*Client, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := &Client{
		db:     database,
		dsn:    databaseURL,
		logger: logger.With("module", "store.postgres"),
	}

	for _, opt := range opts {
		opt(client)
	}

	migrationManager := NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return client, nil
}

func (c *Client) Query(ctx context.Context, q store.Query) ([]store.Row, error) {
	table, err := tableFor(q.Collection)
	if err != nil {
		return nil, err
	}

	query := "SELECT doc FROM " + table

	var args []any

	if len(q.Filter) > 0 {
		filterJSON, err := json.Marshal(q.Filter)
		if err != nil {
			return nil, fmt.Errorf("failed to encode filter: %w", err)
		}

		query += " WHERE doc @> $1::jsonb"
		args = append(args, filterJSON)
	}

	if q.OrderBy != "" {
		// JSONB ordering compares numbers numerically and strings
		// lexicographically, which is what callers expect for both
		// progress-style and timestamp-style fields.
		query += " ORDER BY doc->" + pq.QuoteLiteral(q.OrderBy)
		if q.Descending {
			query += " DESC"
		}
	}

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	result := []store.Row{}

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", q.Collection, err)
		}

		var row store.Row
		if err := json.Unmarshal(doc, &row); err != nil {
			return nil, fmt.Errorf("failed to decode row from %s: %w", q.Collection, err)
		}

		if q.Columns != nil {
			row = projectRow(row, q.Columns)
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows from %s: %w", q.Collection, err)
	}

	return result, nil
}

func (c *Client) QueryOne(ctx context.Context, q store.Query) (store.Row, error) {
	q.Limit = 1

	rows, err := c.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}

	return rows[0], nil
}

func (c *Client) Insert(ctx context.Context, collection string, rows []store.Row) ([]store.Row, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	persisted := make([]store.Row, 0, len(rows))

	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			rowID, err := uuid.NewV7()
			if err != nil {
				_ = tx.Rollback()
				return nil, fmt.Errorf("failed to generate row id: %w", err)
			}

			id = rowID.String()

			withID := make(store.Row, len(row)+1)
			for field, value := range row {
				withID[field] = value
			}

			withID["id"] = id
			row = withID
		}

		doc, err := json.Marshal(row)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to encode row: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" (id, doc) VALUES ($1, $2::jsonb)", id, doc); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to insert into %s: %w", collection, err)
		}

		var persistedRow store.Row
		if err := json.Unmarshal(doc, &persistedRow); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to decode persisted row: %w", err)
		}

		persisted = append(persisted, persistedRow)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit insert into %s: %w", collection, err)
	}

	for _, row := range persisted {
		c.notify(ctx, store.ChangeEvent{Collection: collection, Op: store.OpInsert, Row: row})
	}

	return persisted, nil
}

func (c *Client) Update(ctx context.Context, collection string, filter store.Filter, patch store.Row) error {
	table, err := tableFor(collection)
	if err != nil {
		return err
	}

	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode patch: %w", err)
	}

	query := "UPDATE " + table + " SET doc = doc || $1::jsonb, updated_at = NOW()"
	args := []any{patchJSON}

	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return fmt.Errorf("failed to encode filter: %w", err)
		}

		query += " WHERE doc @> $2::jsonb"
		args = append(args, filterJSON)
	}

	if c.bus == nil {
		if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update %s: %w", collection, err)
		}

		return nil
	}

	changed, err := c.execReturningDocs(ctx, query, args)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", collection, err)
	}

	for _, row := range changed {
		c.notify(ctx, store.ChangeEvent{Collection: collection, Op: store.OpUpdate, Row: row})
	}

	return nil
}

func (c *Client) Delete(ctx context.Context, collection string, filter store.Filter) error {
	table, err := tableFor(collection)
	if err != nil {
		return err
	}

	query := "DELETE FROM " + table

	var args []any

	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return fmt.Errorf("failed to encode filter: %w", err)
		}

		query += " WHERE doc @> $1::jsonb"
		args = append(args, filterJSON)
	}

	if c.bus == nil {
		if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", collection, err)
		}

		return nil
	}

	removed, err := c.execReturningDocs(ctx, query, args)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", collection, err)
	}

	for _, row := range removed {
		c.notify(ctx, store.ChangeEvent{Collection: collection, Op: store.OpDelete, Row: row})
	}

	return nil
}

// OpenChangeFeed subscribes to the collection's notification channel. Trigger
// payloads carry only collection and op (NOTIFY payloads are size-capped, a
// document with many steps would not fit), so feed filters over-deliver and
// consumers re-fetch to see what actually changed.
func (c *Client) OpenChangeFeed(ctx context.Context, collection string, filter store.Filter) (store.Feed, error) {
	if !identifierPattern.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}

	if c.bus != nil {
		feed, err := c.bus.Subscribe(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("failed to open change feed: %w", err)
		}

		return store.FilterFeed(feed, filter), nil
	}

	listener := pq.NewListener(c.dsn, listenerMinReconnect, listenerMaxReconnect,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				c.logger.Error("Change listener connection event",
					"error", err, "event", event, "collection", collection)
			}
		})

	if err := listener.Listen(changeChannelPrefix + collection); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen on change channel for %s: %w", collection, err)
	}

	feedCtx, cancel := context.WithCancel(ctx)
	feed := store.NewFeedStream(cancel)

	go c.pumpNotifications(feedCtx, listener, collection, feed)

	return store.FilterFeed(feed, filter), nil
}

func (c *Client) pumpNotifications(ctx context.Context, listener *pq.Listener, collection string, feed *store.FeedStream) {
	defer feed.Finish()
	defer func() { _ = listener.Close() }()

	for {
		select {
		case <-ctx.Done():
			return

		case notification, ok := <-listener.Notify:
			if !ok {
				return
			}

			if notification == nil {
				// The listener reconnected; notifications may have been
				// missed in between, so deliver a bare wake-up.
				feed.Deliver(store.ChangeEvent{Collection: collection})
				continue
			}

			var event store.ChangeEvent
			if err := json.Unmarshal([]byte(notification.Extra), &event); err != nil {
				c.logger.Error("Failed to decode change notification",
					"error", err, "channel", notification.Channel)
				feed.Deliver(store.ChangeEvent{Collection: collection})

				continue
			}

			feed.Deliver(event)

		case <-time.After(listenerPingInterval):
			go func() { _ = listener.Ping() }()
		}
	}
}

func (c *Client) Close(_ context.Context) error {
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// execReturningDocs runs a write with RETURNING doc appended and decodes the
// affected rows, so they can be published to the event bus.
func (c *Client) execReturningDocs(ctx context.Context, query string, args []any) ([]store.Row, error) {
	rows, err := c.db.QueryContext(ctx, query+" RETURNING doc", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changed []store.Row

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}

		var row store.Row
		if err := json.Unmarshal(doc, &row); err != nil {
			return nil, err
		}

		changed = append(changed, row)
	}

	return changed, rows.Err()
}

// notify publishes a change event to the external bus after the write
// committed. Failures are logged, never surfaced: the write already happened
// and feeds are best-effort.
func (c *Client) notify(ctx context.Context, event store.ChangeEvent) {
	if c.bus == nil {
		return
	}

	if err := c.bus.Publish(ctx, event); err != nil {
		c.logger.Error("Failed to publish change event",
			"error", err, "collection", event.Collection, "op", event.Op)
	}
}

func tableFor(collection string) (string, error) {
	if !identifierPattern.MatchString(collection) {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}

	return pq.QuoteIdentifier(collection), nil
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
