// Package main provides the ChainPress API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/chainpress/chainpress/pkg/engine"
	"github.com/chainpress/chainpress/pkg/eventbus"
	"github.com/chainpress/chainpress/pkg/persistence"
	"github.com/chainpress/chainpress/pkg/registry"
	"github.com/chainpress/chainpress/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

type API struct {
	logger   *slog.Logger
	store    persistence.Persistence
	registry *registry.Registry
	eventBus eventbus.EventBus
	tracer   trace.Tracer
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:   logger,
		store:    store,
		registry: registry,
		eventBus: eventBus,
		tracer:   tracer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	launcher := engine.NewLauncher(a.store, a.registry, a.eventBus, a.logger, a.tracer)
	runner := engine.NewRunner(a.store, a.registry, launcher.LaunchByTriggerID, a.logger, a.tracer)
	handlers := web.NewAPIHandlers(a.store, launcher, runner, a.registry, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("ChainPress API")
	})

	am := app.Group("/automations")
	am.Get("/", handlers.GetAutomations)
	am.Post("/", handlers.CreateAutomation)
	am.Get("/:id", handlers.GetAutomation)
	am.Patch("/:id", handlers.UpdateAutomation)
	am.Delete("/:id", handlers.DeleteAutomation)
	am.Get("/:id/contents", handlers.GetContents)

	ct := app.Group("/contents")
	ct.Get("/:contentId/triggers", handlers.GetTriggers)
	ct.Post("/:contentId/triggers", handlers.CreateTrigger)
	ct.Get("/:contentId/instances", handlers.GetInstances)
	ct.Get("/:contentId/messages", handlers.GetContentMessages)

	tr := app.Group("/triggers")
	tr.Get("/:id", handlers.GetTrigger)
	tr.Patch("/:id", handlers.UpdateTrigger)
	tr.Delete("/:id", handlers.DeleteTrigger)
	tr.Post("/:id/launch", handlers.LaunchTrigger)

	in := app.Group("/instances")
	in.Get("/:id", handlers.GetInstance)
	in.Get("/:id/actions", handlers.GetInstanceActions)
	in.Post("/:id/actions/:actionId/step", handlers.StepInstanceAction)

	app.Get("/tasks", handlers.GetTasks)
	app.Get("/trigger-definitions", handlers.GetTriggerDefinitions)
	app.Get("/services", handlers.GetServices)

	ak := app.Group("/api-keys")
	ak.Get("/", handlers.GetAPIKeys)
	ak.Post("/", handlers.CreateAPIKey)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
