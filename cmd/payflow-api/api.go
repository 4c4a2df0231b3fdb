// Package main provides the payflow API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/payflow/pkg/engine"
	"github.com/dukex/payflow/pkg/persistence"
	"github.com/dukex/payflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
)

type API struct {
	logger   *slog.Logger
	backend  persistence.Backend
	engine   *engine.Engine
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	backend persistence.Backend,
	workflows *engine.Engine,
) *API {
	return &API{
		logger:   logger,
		backend:  backend,
		engine:   workflows,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.backend, a.validate)

	app := fiber.New()
	app.Use(recoverer.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Payflow API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	a.logger.Info("Starting Payflow API", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
