// Package main provides the Automata API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/practiq/automata/pkg/persistence"
	"github.com/practiq/automata/pkg/registry"
	"github.com/practiq/automata/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
}

func NewAPI(logger *slog.Logger, persistence persistence.Persistence, registry *registry.Registry) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.persistence, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Automata API")
	})

	t := app.Group("/triggers")
	t.Get("/", handlers.GetTriggers)
	t.Post("/validate", handlers.ValidateTrigger)
	t.Get("/:id", handlers.GetTrigger)
	t.Get("/:id/events", handlers.GetTriggerEvents)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
