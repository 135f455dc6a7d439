// Package main provides the onid sidecar server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/onios/onid/pkg/commands"
	"github.com/onios/onid/pkg/eventbus"
	"github.com/onios/onid/pkg/services"
	"github.com/onios/onid/pkg/web"
	"github.com/onios/onid/pkg/workflow"
)

type API struct {
	logger   *slog.Logger
	commands *commands.Registry
	engine   *workflow.Engine
	service  *services.Workflow
	eventBus eventbus.EventBus
	validate *validator.Validate
	app      *fiber.App
}

func NewAPI(
	logger *slog.Logger,
	cmds *commands.Registry,
	engine *workflow.Engine,
	service *services.Workflow,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:   logger,
		commands: cmds,
		engine:   engine,
		service:  service,
		eventBus: eventBus,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.commands, a.engine, a.service, a.eventBus, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("onid")
	})

	web.RegisterRoutes(app, handlers)

	return app
}

func (a *API) Start(port int) error {
	a.app = a.App()

	return a.app.Listen(":" + strconv.Itoa(port))
}

func (a *API) Shutdown(ctx context.Context) error {
	if a.app == nil {
		return nil
	}

	return a.app.ShutdownWithContext(ctx)
}
