// Package models defines the core domain models for onboarding plan synchronization.
package models

// StepStatus represents the completion state of a single onboarding step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"   // Not started or blocked upstream
	StepStatusStuck     StepStatus = "stuck"     // Started but needs help
	StepStatusCompleted StepStatus = "completed" // Done
)

// ValidStepStatus reports whether s is one of the known step statuses.
func ValidStepStatus(s StepStatus) bool {
	switch s {
	case StepStatusPending, StepStatusStuck, StepStatusCompleted:
		return true
	default:
		return false
	}
}

// Step is one item of an onboarding plan. Steps are matched across template
// edits by Title, not by Position: positions are reassigned on every merge to
// follow the template's current ordering.
type Step struct {
	Position    int        `json:"position"`
	Title       string     `json:"title"       validate:"required"`
	Description string     `json:"description"`
	Role        string     `json:"role"`
	Owner       string     `json:"owner"`
	Expert      string     `json:"expert"`
	Status      StepStatus `json:"status"`
	Link        string     `json:"link"`
}

// NormalizeSteps returns a copy of steps with positions reassigned 1..N in
// slice order and empty statuses defaulted to pending. Every write path runs
// step lists through this so positions stay contiguous and unique.
func NormalizeSteps(steps []Step) []Step {
	normalized := make([]Step, len(steps))

	for i, step := range steps {
		step.Position = i + 1
		if step.Status == "" {
			step.Status = StepStatusPending
		}

		normalized[i] = step
	}

	return normalized
}

// CloneSteps returns an independent copy of steps. Onboardings snapshot
// template steps at creation time; they must never alias the template's slice.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}

	cloned := make([]Step, len(steps))
	copy(cloned, steps)

	return cloned
}
