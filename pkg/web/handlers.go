// Package web provides HTTP handlers and REST API endpoints for onboarding
// plan management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/onramp/pkg/models"
	"github.com/dukex/onramp/pkg/services"
)

type APIHandlers struct {
	templateService   *services.Templates
	onboardingService *services.Onboardings
	validator         *validator.Validate
}

func NewAPIHandlers(
	templateService *services.Templates,
	onboardingService *services.Onboardings,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		templateService:   templateService,
		onboardingService: onboardingService,
		validator:         validator,
	}
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	templates, err := h.templateService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"templates":   templates,
		"total_count": len(templates),
	})
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	tmpl, found, err := h.templateService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !found {
		return notFound(c, "Template not found")
	}

	return c.JSON(tmpl)
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	tmpl := &models.Template{
		Name:        req.Name,
		Description: req.Description,
		Role:        req.Role,
		Steps:       req.Steps,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}

	created, err := h.templateService.Create(c.Context(), tmpl)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// UpdateTemplate applies a partial update and kicks off background
// reconciliation of dependent onboardings; the response never waits for it.
func (h *APIHandlers) UpdateTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var req UpdateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, found, err := h.templateService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !found {
		return notFound(c, "Template not found")
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Role != nil {
		existing.Role = *req.Role
	}

	if req.Steps != nil {
		existing.Steps = *req.Steps
	}

	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	updated, err := h.templateService.Update(c.Context(), id, &existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	_, found, err := h.templateService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !found {
		return notFound(c, "Template not found")
	}

	if err := h.templateService.Remove(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetOnboardings(c fiber.Ctx) error {
	onboardings, err := h.onboardingService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"onboardings": onboardings,
		"total_count": len(onboardings),
	})
}

func (h *APIHandlers) GetOnboarding(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Onboarding ID is required")
	}

	onboarding, found, err := h.onboardingService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !found {
		return notFound(c, "Onboarding not found")
	}

	return c.JSON(onboarding)
}

func (h *APIHandlers) CreateOnboarding(c fiber.Ctx) error {
	var req CreateOnboardingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	newOnboarding := services.NewOnboarding{
		EmployeeName:  req.EmployeeName,
		EmployeeEmail: req.EmployeeEmail,
		Role:          req.Role,
		Department:    req.Department,
		StartDate:     req.StartDate,
		Steps:         req.Steps,
	}

	var (
		created *models.Onboarding
		err     error
	)

	if req.TemplateID != nil {
		created, err = h.onboardingService.CreateFromTemplate(c.Context(), *req.TemplateID, newOnboarding)
	} else {
		created, err = h.onboardingService.Create(c.Context(), newOnboarding)
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateOnboardingStep(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Onboarding ID is required")
	}

	position, err := strconv.Atoi(c.Params("position"))
	if err != nil {
		return badRequest(c, "Step position must be an integer")
	}

	var req UpdateStepStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.onboardingService.UpdateStepStatus(c.Context(), id, position, req.Status)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteOnboarding(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Onboarding ID is required")
	}

	_, found, err := h.onboardingService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !found {
		return notFound(c, "Onboarding not found")
	}

	if err := h.onboardingService.Remove(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	storeCheck, storeOk := h.templateService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Onramp API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if storeOk {
		status = "healthy"
		message = "Onramp API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
