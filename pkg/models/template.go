package models

import "time"

// Collection names in the remote store.
const (
	CollectionTemplates   = "templates"
	CollectionOnboardings = "onboardings"
)

// Template is an admin-owned onboarding plan definition. Updating a template
// replaces its step list wholesale (full delete+insert semantics, never a
// partial patch); dependent onboardings are reconciled afterwards.
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"        validate:"required,min=3"`
	Description string    `json:"description"`
	Role        string    `json:"role"`
	Steps       []Step    `json:"steps"       validate:"dive"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
