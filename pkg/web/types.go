// Package web provides HTTP request and response types for the onboarding API.
package web

import (
	"time"

	"github.com/dukex/onramp/pkg/models"
)

// CreateTemplateRequest represents the request body for creating a template.
type CreateTemplateRequest struct {
	Name        string        `json:"name"                validate:"required,min=3"`
	Description string        `json:"description"`
	Role        string        `json:"role"`
	Steps       []models.Step `json:"steps"               validate:"dive"`
	IsActive    *bool         `json:"is_active,omitempty"`
}

// UpdateTemplateRequest represents the request body for updating a template.
// All fields are optional to support partial updates, but a provided step
// list replaces the plan wholesale — there is no per-step patching.
type UpdateTemplateRequest struct {
	Name        *string        `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string        `json:"description,omitempty"`
	Role        *string        `json:"role,omitempty"`
	Steps       *[]models.Step `json:"steps,omitempty"       validate:"omitempty,dive"`
	IsActive    *bool          `json:"is_active,omitempty"`
}

// CreateOnboardingRequest represents the request body for starting an
// onboarding. With a template_id the plan is snapshotted from that template
// and steps is ignored; without one, steps seeds the plan directly.
type CreateOnboardingRequest struct {
	EmployeeName  string        `json:"employee_name"            validate:"required"`
	EmployeeEmail string        `json:"employee_email,omitempty" validate:"omitempty,email"`
	Role          string        `json:"role,omitempty"`
	Department    string        `json:"department,omitempty"`
	TemplateID    *string       `json:"template_id,omitempty"`
	StartDate     *time.Time    `json:"start_date,omitempty"`
	Steps         []models.Step `json:"steps,omitempty"          validate:"dive"`
}

// UpdateStepStatusRequest represents the request body for setting one step's
// status.
type UpdateStepStatusRequest struct {
	Status models.StepStatus `json:"status" validate:"required,oneof=pending stuck completed"`
}
