package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssessmentHandler    *handler.AssessmentHandler
	SubmissionHandler    *handler.SubmissionHandler
	AccommodationHandler *handler.AccommodationHandler
	ActivityHandler      *handler.ActivityHandler
	SeedHandler          *handler.SeedHandler
	JWTMiddleware        fiber.Handler
	HealthProbes         []handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	v2 := app.Group("/api/v2", jwtMiddleware)

	if deps.AssessmentHandler != nil {
		deps.AssessmentHandler.Register(v2.Group("/assessments"))
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(v2.Group("/submissions"))
	}
	if deps.AccommodationHandler != nil {
		deps.AccommodationHandler.Register(v2.Group("/students"))
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(v2.Group("/activity", middleware.RequireRole(models.RoleAdmin, models.RoleTeacher)))
	}

	// Seeding is token gated rather than JWT gated.
	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(app.Group("/api/internal/seed"))
	}
}
