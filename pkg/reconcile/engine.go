package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/onramp/pkg/models"
	"github.com/dukex/onramp/pkg/otelhelper"
	"github.com/dukex/onramp/pkg/store"
)

// ReconciliationError wraps one onboarding's failed sync. It is logged per
// onboarding and never propagated: a template update must not fail because a
// dependent could not be reconciled.
type ReconciliationError struct {
	TemplateID   string
	OnboardingID string
	Err          error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("failed to reconcile onboarding %s against template %s: %v",
		e.OnboardingID, e.TemplateID, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// Engine syncs dependent onboardings after a template's step list changed.
type Engine struct {
	client store.Client
	logger *slog.Logger
	mode   Mode
	tracer trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithMode overrides the default full reconciliation mode.
func WithMode(mode Mode) Option {
	return func(e *Engine) {
		e.mode = mode
	}
}

// WithTracer injects the tracer to span sync runs with.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func New(client store.Client, logger *slog.Logger, opts ...Option) *Engine {
	engine := &Engine{
		client: client,
		logger: logger.With("module", "reconcile"),
		mode:   ModeFull,
		tracer: otel.Tracer("onramp/reconcile"),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Mode returns the engine's reconciliation mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// SyncTemplate merges tmpl's current step list into every onboarding whose
// template_id references it and recomputes each one's progress. A failure on
// one onboarding is logged and skipped, never aborting the rest. Returns how
// many onboardings were synced; the error is non-nil only when the dependent
// query itself failed and nothing could be reconciled.
func (e *Engine) SyncTemplate(ctx context.Context, tmpl *models.Template) (int, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "reconcile.sync_template",
		attribute.String(otelhelper.TemplateIDKey, tmpl.ID),
		attribute.String(otelhelper.ReconcileModeKey, string(e.mode)),
	)
	defer span.End()

	rows, err := e.client.Query(ctx, store.Query{
		Collection: models.CollectionOnboardings,
		Filter:     store.Filter{"template_id": tmpl.ID},
	})
	if err != nil {
		err = fmt.Errorf("failed to query onboardings for template %s: %w", tmpl.ID, err)
		otelhelper.SetError(span, err)

		return 0, err
	}

	synced := 0

	for _, row := range rows {
		onboarding, err := store.DecodeRow[models.Onboarding](row)
		if err != nil {
			id, _ := row["id"].(string)
			e.reportFailure(ctx, span, tmpl.ID, id, err)

			continue
		}

		if err := e.syncOnboarding(ctx, tmpl, &onboarding); err != nil {
			e.reportFailure(ctx, span, tmpl.ID, onboarding.ID, err)

			continue
		}

		synced++
	}

	span.SetAttributes(
		attribute.Int("onramp.reconcile.dependents", len(rows)),
		attribute.Int("onramp.reconcile.synced", synced),
	)

	e.logger.InfoContext(ctx, "Template reconciliation finished",
		"template_id", tmpl.ID, "dependents", len(rows), "synced", synced, "mode", e.mode)

	return synced, nil
}

func (e *Engine) syncOnboarding(ctx context.Context, tmpl *models.Template, onboarding *models.Onboarding) error {
	merged := MergeSteps(onboarding.Steps, tmpl.Steps, e.mode)

	// Dependents already in sync stay untouched, so periodic resync sweeps do
	// not churn updated_at or wake change feed subscribers.
	if slices.Equal(onboarding.Steps, merged) {
		return nil
	}

	onboarding.Steps = merged
	onboarding.ApplyProgress()
	onboarding.UpdatedAt = time.Now().UTC()

	row, err := store.EncodeRow(onboarding)
	if err != nil {
		return fmt.Errorf("failed to encode onboarding: %w", err)
	}

	patch := store.Row{
		"steps":      row["steps"],
		"progress":   row["progress"],
		"status":     row["status"],
		"updated_at": row["updated_at"],
	}

	// Dropping back below 100% must clear completed_at in the store, so the
	// patch always carries the field, null when unset.
	if completedAt, ok := row["completed_at"]; ok {
		patch["completed_at"] = completedAt
	} else {
		patch["completed_at"] = nil
	}

	if err := e.client.Update(ctx, models.CollectionOnboardings,
		store.Filter{"id": onboarding.ID}, patch); err != nil {
		return fmt.Errorf("failed to write reconciled steps: %w", err)
	}

	return nil
}

func (e *Engine) reportFailure(ctx context.Context, span trace.Span, templateID, onboardingID string, err error) {
	syncErr := &ReconciliationError{TemplateID: templateID, OnboardingID: onboardingID, Err: err}

	otelhelper.SetError(span, syncErr,
		attribute.String(otelhelper.OnboardingIDKey, onboardingID),
	)
	e.logger.ErrorContext(ctx, "Failed to reconcile onboarding",
		"template_id", templateID, "onboarding_id", onboardingID, "error", err)
}
