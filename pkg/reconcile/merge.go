// Package reconcile keeps onboarding step lists in sync with their parent
// template. A template edit replaces its step list wholesale; the engine then
// merges the new list into every dependent onboarding, preserving each
// employee's per-step status, and recomputes progress.
//
// Steps match by title, not position. Renaming a template step is therefore
// indistinguishable from removing it and adding a new one — the renamed step
// comes back as pending. That is the intended matching contract.
package reconcile

import "github.com/dukex/onramp/pkg/models"

// Mode selects how a template's steps merge into an onboarding's.
type Mode string

const (
	// ModeFull rebuilds the onboarding's list to match the template's
	// current order and count. Only step status survives from the
	// onboarding; every other field comes from the template. Steps the
	// template dropped disappear, steps it added arrive as pending.
	ModeFull Mode = "full"

	// ModeAdditive appends template steps the onboarding has never seen and
	// leaves existing steps untouched. Conservative: never loses
	// onboarding-side state, never reorders.
	ModeAdditive Mode = "additive"
)

// ValidMode reports whether mode is a known reconciliation mode.
func ValidMode(mode Mode) bool {
	return mode == ModeFull || mode == ModeAdditive
}

// MergeSteps merges a template's step list into an onboarding's current
// list. Pure: inputs are not mutated, positions in the result are renumbered
// 1..N.
func MergeSteps(current, tmpl []models.Step, mode Mode) []models.Step {
	if mode == ModeAdditive {
		return mergeAdditive(current, tmpl)
	}

	return mergeFull(current, tmpl)
}

func mergeFull(current, tmpl []models.Step) []models.Step {
	// First match wins when an onboarding carries duplicate titles.
	statusByTitle := make(map[string]models.StepStatus, len(current))

	for _, step := range current {
		if _, seen := statusByTitle[step.Title]; !seen {
			statusByTitle[step.Title] = step.Status
		}
	}

	merged := make([]models.Step, 0, len(tmpl))

	for _, step := range tmpl {
		if status, ok := statusByTitle[step.Title]; ok {
			step.Status = status
		} else {
			step.Status = models.StepStatusPending
		}

		merged = append(merged, step)
	}

	return models.NormalizeSteps(merged)
}

func mergeAdditive(current, tmpl []models.Step) []models.Step {
	existing := make(map[string]struct{}, len(current))

	for _, step := range current {
		existing[step.Title] = struct{}{}
	}

	merged := models.CloneSteps(current)

	for _, step := range tmpl {
		if _, ok := existing[step.Title]; ok {
			continue
		}

		step.Status = models.StepStatusPending
		merged = append(merged, step)
	}

	return models.NormalizeSteps(merged)
}
