// Package main provides the Onramp reconciliation daemon. It follows the
// template collection through a live subscription and reconciles dependent
// onboardings on every template edit; a periodic full sweep heals whatever
// the best-effort change feed missed.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukex/onramp/pkg/models"
	"github.com/dukex/onramp/pkg/reconcile"
	"github.com/dukex/onramp/pkg/records"
	"github.com/dukex/onramp/pkg/store"
)

type Syncer struct {
	logger    *slog.Logger
	engine    *reconcile.Engine
	templates *records.Service[models.Template]
	interval  time.Duration

	mu    sync.Mutex
	marks map[string]time.Time // template id -> last reconciled UpdatedAt
}

func NewSyncer(client store.Client, engine *reconcile.Engine, logger *slog.Logger, interval time.Duration) *Syncer {
	templates := records.NewService(client, logger, records.Config[models.Template]{
		Collection: models.CollectionTemplates,
		Kind:       "template",
		OrderBy:    "name",
		FromRow:    store.DecodeRow[models.Template],
		Realtime:   &records.Realtime{Shared: true},
	})

	return &Syncer{
		logger:    logger.With("module", "onramp-sync"),
		engine:    engine,
		templates: templates,
		interval:  interval,
		marks:     make(map[string]time.Time),
	}
}

// Start blocks until ctx is cancelled. The initial subscription snapshot
// reconciles every template once, which doubles as the catch-up pass after
// daemon downtime.
func (s *Syncer) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting reconciliation daemon", "resync_interval", s.interval)

	unsubscribe := s.templates.Subscribe(ctx, func(templates []models.Template) {
		s.handleTemplates(ctx, templates)
	})
	defer unsubscribe()

	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := scheduler.AddFunc("@every "+s.interval.String(), func() { s.resync(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule resync sweep: %w", err)
	}

	scheduler.Start()
	defer scheduler.Stop()

	s.logger.InfoContext(ctx, "Reconciliation daemon started")

	<-ctx.Done()
	s.logger.InfoContext(ctx, "Shutting down reconciliation daemon...")

	return nil
}

// handleTemplates runs on every refreshed template snapshot. Only templates
// whose UpdatedAt moved past the recorded mark get reconciled, so snapshot
// redeliveries stay cheap.
func (s *Syncer) handleTemplates(ctx context.Context, templates []models.Template) {
	for _, tmpl := range templates {
		if !s.advanceMark(tmpl.ID, tmpl.UpdatedAt) {
			continue
		}

		s.syncOne(ctx, tmpl)
	}
}

// resync sweeps every template regardless of marks. The change feed is
// best-effort; the sweep is what guarantees convergence after dropped
// notifications.
func (s *Syncer) resync(ctx context.Context) {
	templates, err := s.templates.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list templates for resync sweep", "error", err)

		return
	}

	seen := make(map[string]struct{}, len(templates))

	for _, tmpl := range templates {
		seen[tmpl.ID] = struct{}{}
		s.advanceMark(tmpl.ID, tmpl.UpdatedAt)
		s.syncOne(ctx, tmpl)
	}

	s.dropMarksExcept(seen)

	s.logger.InfoContext(ctx, "Resync sweep finished", "templates", len(templates))
}

func (s *Syncer) syncOne(ctx context.Context, tmpl models.Template) {
	synced, err := s.engine.SyncTemplate(ctx, &tmpl)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to reconcile onboardings",
			"template_id", tmpl.ID, "error", err)

		return
	}

	s.logger.DebugContext(ctx, "Template reconciled", "template_id", tmpl.ID, "synced", synced)
}

// advanceMark records updatedAt as the latest reconciled revision of the
// template and reports whether it actually moved forward.
func (s *Syncer) advanceMark(id string, updatedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	mark, ok := s.marks[id]
	if ok && !updatedAt.After(mark) {
		return false
	}

	s.marks[id] = updatedAt

	return true
}

// dropMarksExcept forgets marks for templates that no longer exist, keeping
// the map bounded by the live template count.
func (s *Syncer) dropMarksExcept(seen map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.marks {
		if _, ok := seen[id]; !ok {
			delete(s.marks, id)
		}
	}
}
