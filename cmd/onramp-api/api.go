// Package main provides the Onramp API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dukex/onramp/pkg/reconcile"
	"github.com/dukex/onramp/pkg/services"
	"github.com/dukex/onramp/pkg/store"
	"github.com/dukex/onramp/pkg/web"
)

type API struct {
	logger   *slog.Logger
	client   store.Client
	engine   *reconcile.Engine
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, client store.Client, engine *reconcile.Engine) *API {
	return &API{
		logger:   logger,
		client:   client,
		engine:   engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	templateService := services.NewTemplates(a.client, a.logger, a.engine)
	onboardingService := services.NewOnboardings(a.client, a.logger)

	handlers := web.NewAPIHandlers(templateService, onboardingService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Onramp API")
	})

	t := app.Group("/templates")
	t.Get("/", handlers.GetTemplates)
	t.Post("/", handlers.CreateTemplate)
	t.Get("/:id", handlers.GetTemplate)
	t.Patch("/:id", handlers.UpdateTemplate)
	t.Delete("/:id", handlers.DeleteTemplate)

	o := app.Group("/onboardings")
	o.Get("/", handlers.GetOnboardings)
	o.Post("/", handlers.CreateOnboarding)
	o.Get("/:id", handlers.GetOnboarding)
	o.Patch("/:id/steps/:position", handlers.UpdateOnboardingStep)
	o.Delete("/:id", handlers.DeleteOnboarding)

	app.Get("/healthz", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
