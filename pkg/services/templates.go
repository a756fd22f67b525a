package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukex/onramp/pkg/models"
	"github.com/dukex/onramp/pkg/reconcile"
	"github.com/dukex/onramp/pkg/records"
	"github.com/dukex/onramp/pkg/store"
)

// reconcileTimeout bounds the detached reconciliation run that follows a
// template update.
const reconcileTimeout = 30 * time.Second

// Templates manages onboarding plan templates. Template updates replace the
// step list wholesale and fan out to dependent onboardings through the
// reconciliation engine, asynchronously: the caller's update never waits on,
// or fails because of, reconciliation.
type Templates struct {
	records  *records.Service[models.Template]
	client   store.Client
	engine   *reconcile.Engine
	logger   *slog.Logger
	validate *validator.Validate
}

// NewTemplates creates the template service.
func NewTemplates(client store.Client, logger *slog.Logger, engine *reconcile.Engine) *Templates {
	return &Templates{
		records: records.NewService(client, logger, records.Config[models.Template]{
			Collection: models.CollectionTemplates,
			Kind:       "template",
			OrderBy:    "name",
			FromRow:    store.DecodeRow[models.Template],
			Realtime:   &records.Realtime{Shared: true},
		}),
		client:   client,
		engine:   engine,
		logger:   logger.With("module", "services", "kind", "template"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthCheck checks the health of the backing store.
func (s *Templates) HealthCheck(ctx context.Context) (string, bool) {
	if s.client == nil {
		return "Store not initialized", false
	}

	_, err := s.client.Query(ctx, store.Query{Collection: models.CollectionTemplates, Limit: 1})
	if err != nil {
		return "Store is unhealthy: " + err.Error(), false
	}

	return "Store is healthy", true
}

// List returns all templates ordered by name.
func (s *Templates) List(ctx context.Context) ([]models.Template, error) {
	return s.records.List(ctx)
}

// Get fetches one template by id. Absence is reported through the boolean,
// not as an error.
func (s *Templates) Get(ctx context.Context, id string) (models.Template, bool, error) {
	return s.records.Get(ctx, id)
}

// GetByName fetches one template by name. Names are the upsert key for
// catalog imports, so they are expected to be unique; with duplicates the
// store picks one.
func (s *Templates) GetByName(ctx context.Context, name string) (models.Template, bool, error) {
	var zero models.Template

	row, err := s.client.QueryOne(ctx, store.Query{
		Collection: models.CollectionTemplates,
		Filter:     store.Filter{"name": name},
	})
	if err != nil {
		if store.IsNotFound(err) {
			return zero, false, nil
		}

		return zero, false, records.NewFetchError("template", err)
	}

	tmpl, err := store.DecodeRow[models.Template](row)
	if err != nil {
		return zero, false, records.NewFetchError("template", err)
	}

	return tmpl, true, nil
}

// Create validates and stores a new template. The template is mutated in
// place: id, timestamps and normalized step positions are filled in.
func (s *Templates) Create(ctx context.Context, tmpl *models.Template) (*models.Template, error) {
	if tmpl == nil {
		return nil, ErrTemplateNil
	}

	if err := s.validate.Struct(tmpl); err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate template id: %w", err)
	}

	now := time.Now().UTC()
	tmpl.ID = id.String()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	tmpl.Steps = models.NormalizeSteps(tmpl.Steps)

	row, err := store.EncodeRow(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to encode template: %w", err)
	}

	if _, err := s.client.Insert(ctx, models.CollectionTemplates, []store.Row{row}); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	return tmpl, nil
}

// Update replaces the template identified by id, step list included — a
// template edit is always a full replace, never a partial step patch. After
// the write lands, dependent onboardings are reconciled in the background;
// reconciliation failures are logged and never surface to the caller.
func (s *Templates) Update(ctx context.Context, id string, tmpl *models.Template) (*models.Template, error) {
	if tmpl == nil {
		return nil, ErrTemplateNil
	}

	existing, found, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, records.NewNotFoundError("template", id)
	}

	if err := s.validate.Struct(tmpl); err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}

	tmpl.ID = id
	tmpl.CreatedAt = existing.CreatedAt
	tmpl.UpdatedAt = time.Now().UTC()
	tmpl.Steps = models.NormalizeSteps(tmpl.Steps)

	row, err := store.EncodeRow(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to encode template: %w", err)
	}

	if err := s.client.Update(ctx, models.CollectionTemplates, store.Filter{"id": id}, row); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	s.syncDependents(ctx, tmpl)

	return tmpl, nil
}

// Remove deletes a template. Onboardings created from it keep their step
// snapshots and their template reference; they simply stop receiving
// reconciliations.
func (s *Templates) Remove(ctx context.Context, id string) error {
	return s.records.Remove(ctx, id)
}

// Subscribe delivers the current template list and re-delivers after every
// settled burst of template changes. All subscribers share one change feed.
func (s *Templates) Subscribe(ctx context.Context, onData func([]models.Template)) (unsubscribe func()) {
	return s.records.Subscribe(ctx, onData)
}

// syncDependents runs the reconciliation engine for tmpl on its own
// goroutine. The engine reads the template after this call returns, so it
// gets its own copy, detached from the caller's context cancellation.
func (s *Templates) syncDependents(ctx context.Context, tmpl *models.Template) {
	snapshot := *tmpl
	snapshot.Steps = models.CloneSteps(tmpl.Steps)

	syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)

	go func() {
		defer cancel()

		if _, err := s.engine.SyncTemplate(syncCtx, &snapshot); err != nil {
			s.logger.ErrorContext(syncCtx, "Failed to reconcile onboardings after template update",
				"template_id", snapshot.ID, "error", err)
		}
	}()
}
