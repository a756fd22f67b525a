package web

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/onramp/pkg/records"
	"github.com/dukex/onramp/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps typed service errors onto problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	var (
		notFoundErr   *records.NotFoundError
		validationErr validator.ValidationErrors
	)

	switch {
	case errors.As(err, &notFoundErr):
		// The kind tells template, onboarding and step misses apart.
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType(notFoundErr.Kind + "_not_found").
			WithDetail(notFoundErr.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.As(err, &validationErr),
		errors.Is(err, services.ErrInvalidStepStatus),
		errors.Is(err, services.ErrTemplateNil):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	default:
		return internalError(c, err)
	}
}
