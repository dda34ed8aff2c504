package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// AccommodationHandler exposes accessibility profile endpoints.
type AccommodationHandler struct {
	service service.AccommodationService
	logger  zerolog.Logger
}

// NewAccommodationHandler constructs the handler.
func NewAccommodationHandler(service service.AccommodationService, logger zerolog.Logger) *AccommodationHandler {
	return &AccommodationHandler{
		service: service,
		logger:  logger.With().Str("component", "accommodation_handler").Logger(),
	}
}

// Register attaches profile routes under the students group.
func (h *AccommodationHandler) Register(router fiber.Router) {
	staff := middleware.AuthOptions{Role: middleware.AuthRoleStaff}
	student := middleware.AuthOptions{Role: middleware.AuthRoleStudent}

	router.Get("/me/accommodations", middleware.WithAuth(h.getOwn, student))
	router.Put("/me/accommodations", middleware.WithAuth(h.updateOwn, student))
	router.Get("/:id/accommodations", middleware.WithAuth(h.getForStudent, staff))
	router.Put("/:id/accommodations", middleware.WithAuth(h.updateForStudent, staff))
}

func (h *AccommodationHandler) getOwn(c *fiber.Ctx) error {
	return h.get(c, userIDFromContext(c))
}

func (h *AccommodationHandler) updateOwn(c *fiber.Ctx) error {
	return h.update(c, userIDFromContext(c))
}

func (h *AccommodationHandler) getForStudent(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return h.get(c, id)
}

func (h *AccommodationHandler) updateForStudent(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return h.update(c, id)
}

func (h *AccommodationHandler) get(c *fiber.Ctx, studentID uint) error {
	profile, err := h.service.GetProfile(requestContext(c), studentID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "accommodation profile", profile)
}

func (h *AccommodationHandler) update(c *fiber.Ctx, studentID uint) error {
	var payload dto.AccommodationUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	profile, err := h.service.UpdateProfile(requestContext(c), studentID, payload)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "accommodation profile updated", profile)
}
