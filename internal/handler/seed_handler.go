package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// SeedHandler exposes tooling endpoints for loading demo data.
type SeedHandler struct {
	service service.SeedService
	logger  zerolog.Logger
}

// NewSeedHandler constructs a seed handler.
func NewSeedHandler(service service.SeedService, logger zerolog.Logger) *SeedHandler {
	return &SeedHandler{
		service: service,
		logger:  logger.With().Str("component", "seed_handler").Logger(),
	}
}

// Register wires seed routes.
func (h *SeedHandler) Register(router fiber.Router) {
	router.Post("/demo", h.demo)
}

type seedDemoRequest struct {
	Students    []models.Student    `json:"students"`
	Assessments []models.Assessment `json:"assessments"`
}

func (h *SeedHandler) demo(c *fiber.Ctx) error {
	token := c.Get("X-Seed-Token")
	var payload seedDemoRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	ctx := requestContext(c)
	students, err := h.service.SeedStudents(ctx, token, payload.Students)
	if err != nil {
		return h.seedError(c, err)
	}

	assessments, err := h.service.SeedAssessments(ctx, token, payload.Assessments)
	if err != nil {
		return h.seedError(c, err)
	}

	return utils.SendSuccess(c, "demo data seeded", fiber.Map{
		"students":    students,
		"assessments": assessments,
	})
}

func (h *SeedHandler) seedError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSeedDisabled):
		return utils.SendError(c, fiber.StatusForbidden, "seeding disabled")
	case errors.Is(err, service.ErrSeedUnauthorized):
		return utils.SendError(c, fiber.StatusForbidden, "invalid token")
	case errors.Is(err, service.ErrValidation):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("seed operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "seed operation failed")
	}
}
