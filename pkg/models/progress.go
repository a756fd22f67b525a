package models

import (
	"math"
	"time"
)

// ProgressResult is the outcome of recomputing progress over a step list.
type ProgressResult struct {
	Progress    int
	Status      OnboardingStatus
	CompletedAt *time.Time
}

// ComputeProgress derives progress, status and completion timestamp from a
// step list. It is idempotent and order-independent: recomputing over the
// same list yields the same result, except that CompletedAt refreshes to the
// current time each time the 100% state is (re-)entered.
//
// Both the direct step-status update path and reconciliation terminate here,
// which keeps their outputs consistent with the Onboarding invariant.
func ComputeProgress(steps []Step) ProgressResult {
	if len(steps) == 0 {
		return ProgressResult{Progress: 0, Status: OnboardingStatusActive}
	}

	completed := 0

	for _, step := range steps {
		if step.Status == StepStatusCompleted {
			completed++
		}
	}

	progress := int(math.Round(100 * float64(completed) / float64(len(steps))))

	if progress == 100 {
		now := time.Now().UTC()

		return ProgressResult{Progress: 100, Status: OnboardingStatusCompleted, CompletedAt: &now}
	}

	return ProgressResult{Progress: progress, Status: OnboardingStatusActive}
}

// ApplyProgress recomputes progress over o's steps and writes the result
// through to the onboarding.
func (o *Onboarding) ApplyProgress() {
	result := ComputeProgress(o.Steps)

	o.Progress = result.Progress
	o.Status = result.Status
	o.CompletedAt = result.CompletedAt
}
