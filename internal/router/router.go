package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/amanar-edu/carnet-api/internal/config"
	"github.com/amanar-edu/carnet-api/internal/handler"
	"github.com/amanar-edu/carnet-api/internal/middleware"
	"github.com/amanar-edu/carnet-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	CarnetHandler *handler.CarnetHandler
	JWTMiddleware fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.CarnetHandler != nil {
		staff := app.Group("/api/v2/carnets", jwtMiddleware,
			middleware.RequireRole("teacher", "sub_admin", "admin"))
		elevated := app.Group("/api/v2/carnets", jwtMiddleware,
			middleware.RequireRole("sub_admin", "admin"))
		deps.CarnetHandler.Register(staff, elevated)
	}
}
