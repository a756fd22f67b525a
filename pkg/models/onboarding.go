package models

import "time"

// OnboardingStatus represents the lifecycle state of an onboarding. It is
// derived from step progress, never set directly.
type OnboardingStatus string

const (
	OnboardingStatusActive    OnboardingStatus = "active"
	OnboardingStatusCompleted OnboardingStatus = "completed"
)

// Onboarding tracks one employee working through a plan. Steps are an
// independent snapshot of the template at creation time; they diverge from
// the template until reconciliation explicitly re-syncs them.
//
// Invariant: Progress == round(100 * completed / total), Status is completed
// iff Progress == 100, and CompletedAt is set iff Status is completed.
type Onboarding struct {
	ID            string           `json:"id"`
	EmployeeName  string           `json:"employee_name"  validate:"required"`
	EmployeeEmail string           `json:"employee_email" validate:"omitempty,email"`
	Role          string           `json:"role"`
	Department    string           `json:"department"`
	TemplateID    *string          `json:"template_id,omitempty"`
	Steps         []Step           `json:"steps"`
	Progress      int              `json:"progress"`
	Status        OnboardingStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	StartDate     *time.Time       `json:"start_date,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}
