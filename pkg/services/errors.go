// Package services implements the domain operations on templates and
// onboardings: validated writes, template-edit reconciliation fan-out and the
// direct step-status path. Reads and subscriptions pass through to the
// underlying record services.
package services

import "errors"

// Business logic errors. These indicate client mistakes (4xx responses), as
// opposed to the typed records errors which carry store failures.
var (
	// ErrTemplateNil is returned when a nil template is passed to a write.
	ErrTemplateNil = errors.New("template cannot be nil")

	// ErrInvalidStepStatus is returned when a step-status update names a
	// status outside pending/stuck/completed.
	ErrInvalidStepStatus = errors.New("invalid step status")
)
