package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukex/onramp/pkg/models"
	"github.com/dukex/onramp/pkg/records"
	"github.com/dukex/onramp/pkg/store"
)

// NewOnboarding is the request to start tracking an employee's onboarding.
type NewOnboarding struct {
	EmployeeName  string     `validate:"required"`
	EmployeeEmail string     `validate:"omitempty,email"`
	Role          string
	Department    string
	StartDate     *time.Time

	// Steps seeds the plan for bare creates. CreateFromTemplate ignores it:
	// the template's step list always wins there.
	Steps []models.Step `validate:"dive"`
}

// Onboardings manages per-employee onboarding records: creation (bare or
// snapshotted from a template) and the direct step-status update path.
type Onboardings struct {
	records  *records.Service[models.Onboarding]
	client   store.Client
	logger   *slog.Logger
	validate *validator.Validate
}

// NewOnboardings creates the onboarding service.
func NewOnboardings(client store.Client, logger *slog.Logger) *Onboardings {
	return &Onboardings{
		records: records.NewService(client, logger, records.Config[models.Onboarding]{
			Collection: models.CollectionOnboardings,
			Kind:       "onboarding",
			OrderBy:    "created_at",
			Descending: true,
			FromRow:    store.DecodeRow[models.Onboarding],
			Realtime:   &records.Realtime{Shared: true},
		}),
		client:   client,
		logger:   logger.With("module", "services", "kind", "onboarding"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// List returns all onboardings, newest first.
func (s *Onboardings) List(ctx context.Context) ([]models.Onboarding, error) {
	return s.records.List(ctx)
}

// Get fetches one onboarding by id. Absence is reported through the boolean,
// not as an error.
func (s *Onboardings) Get(ctx context.Context, id string) (models.Onboarding, bool, error) {
	return s.records.Get(ctx, id)
}

// Create stores a new onboarding with no template reference. Its plan is
// whatever req.Steps carries, which may be empty.
func (s *Onboardings) Create(ctx context.Context, req NewOnboarding) (*models.Onboarding, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid onboarding: %w", err)
	}

	onboarding := req.model()
	onboarding.Steps = models.NormalizeSteps(req.Steps)

	return s.persistNew(ctx, &onboarding)
}

// CreateFromTemplate stores a new onboarding whose plan is a snapshot of the
// template's current step list, every status reset to pending. The snapshot
// is an independent copy: later template edits reach it only through
// reconciliation. The employee's role defaults to the template's role when
// the request leaves it empty.
func (s *Onboardings) CreateFromTemplate(ctx context.Context, templateID string, req NewOnboarding) (*models.Onboarding, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid onboarding: %w", err)
	}

	row, err := s.client.QueryOne(ctx, store.Query{
		Collection: models.CollectionTemplates,
		Filter:     store.Filter{"id": templateID},
	})
	if err != nil {
		if store.IsNotFound(err) {
			return nil, records.NewNotFoundError("template", templateID)
		}

		return nil, records.NewFetchError("template", err)
	}

	tmpl, err := store.DecodeRow[models.Template](row)
	if err != nil {
		return nil, records.NewFetchError("template", err)
	}

	steps := models.CloneSteps(tmpl.Steps)
	for i := range steps {
		steps[i].Status = models.StepStatusPending
	}

	onboarding := req.model()
	onboarding.TemplateID = &tmpl.ID
	onboarding.Steps = models.NormalizeSteps(steps)

	if onboarding.Role == "" {
		onboarding.Role = tmpl.Role
	}

	return s.persistNew(ctx, &onboarding)
}

// UpdateStepStatus sets the status of the step at the given 1-based position
// and recomputes the onboarding's progress, status and completion timestamp.
// A missing onboarding or position yields a NotFoundError.
func (s *Onboardings) UpdateStepStatus(ctx context.Context, id string, position int, status models.StepStatus) (*models.Onboarding, error) {
	if !models.ValidStepStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStepStatus, status)
	}

	onboarding, found, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, records.NewNotFoundError("onboarding", id)
	}

	idx := -1

	for i, step := range onboarding.Steps {
		if step.Position == position {
			idx = i

			break
		}
	}

	if idx < 0 {
		return nil, records.NewNotFoundError("step", fmt.Sprintf("%d of onboarding %s", position, id))
	}

	onboarding.Steps[idx].Status = status
	onboarding.ApplyProgress()
	onboarding.UpdatedAt = time.Now().UTC()

	row, err := store.EncodeRow(&onboarding)
	if err != nil {
		return nil, fmt.Errorf("failed to encode onboarding: %w", err)
	}

	patch := store.Row{
		"steps":      row["steps"],
		"progress":   row["progress"],
		"status":     row["status"],
		"updated_at": row["updated_at"],
	}

	// Un-completing a step must clear completed_at in the store, so the patch
	// always carries the field, null when unset.
	if completedAt, ok := row["completed_at"]; ok {
		patch["completed_at"] = completedAt
	} else {
		patch["completed_at"] = nil
	}

	if err := s.client.Update(ctx, models.CollectionOnboardings, store.Filter{"id": id}, patch); err != nil {
		return nil, fmt.Errorf("failed to update onboarding %s: %w", id, err)
	}

	return &onboarding, nil
}

// Remove deletes an onboarding.
func (s *Onboardings) Remove(ctx context.Context, id string) error {
	return s.records.Remove(ctx, id)
}

// Subscribe delivers the current onboarding list and re-delivers after every
// settled burst of onboarding changes, reconciliation writes included. All
// subscribers share one change feed.
func (s *Onboardings) Subscribe(ctx context.Context, onData func([]models.Onboarding)) (unsubscribe func()) {
	return s.records.Subscribe(ctx, onData)
}

func (req NewOnboarding) model() models.Onboarding {
	return models.Onboarding{
		EmployeeName:  req.EmployeeName,
		EmployeeEmail: req.EmployeeEmail,
		Role:          req.Role,
		Department:    req.Department,
		StartDate:     req.StartDate,
	}
}

// persistNew fills in identity, timestamps and derived progress, then stores
// the onboarding.
func (s *Onboardings) persistNew(ctx context.Context, onboarding *models.Onboarding) (*models.Onboarding, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate onboarding id: %w", err)
	}

	now := time.Now().UTC()
	onboarding.ID = id.String()
	onboarding.CreatedAt = now
	onboarding.UpdatedAt = now
	onboarding.ApplyProgress()

	row, err := store.EncodeRow(onboarding)
	if err != nil {
		return nil, fmt.Errorf("failed to encode onboarding: %w", err)
	}

	if _, err := s.client.Insert(ctx, models.CollectionOnboardings, []store.Row{row}); err != nil {
		return nil, fmt.Errorf("failed to create onboarding: %w", err)
	}

	return onboarding, nil
}
