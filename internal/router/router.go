package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/internflow/internflow-api/internal/config"
	"github.com/internflow/internflow-api/internal/handler"
	"github.com/internflow/internflow-api/internal/models"
	"github.com/internflow/internflow-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RatingHandler      *handler.RatingHandler
	RatingStatsHandler *handler.RatingStatsHandler
	JWTMiddleware      fiber.Handler
	RequireRole        func(roles ...string) fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	requireRole := deps.RequireRole
	if requireRole == nil {
		requireRole = func(roles ...string) fiber.Handler {
			return func(c *fiber.Ctx) error { return c.Next() }
		}
	}

	if deps.RatingHandler != nil {
		ratings := api.Group("/ratings", jwtMiddleware)

		if deps.RatingStatsHandler != nil {
			deps.RatingStatsHandler.Register(ratings)
		}

		approverOnly := requireRole(string(models.RoleHR), string(models.RoleAdmin))
		deps.RatingHandler.Register(ratings, approverOnly)
	}
}
