package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// AssessmentHandler wires catalog routes and the attempt entry point.
type AssessmentHandler struct {
	assessments service.AssessmentService
	submissions service.SubmissionService
	logger      zerolog.Logger
}

// NewAssessmentHandler constructs the handler.
func NewAssessmentHandler(assessments service.AssessmentService, submissions service.SubmissionService, logger zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		assessments: assessments,
		submissions: submissions,
		logger:      logger.With().Str("component", "assessment_handler").Logger(),
	}
}

// Register attaches assessment endpoints to the router group.
func (h *AssessmentHandler) Register(router fiber.Router) {
	staff := middleware.AuthOptions{Role: middleware.AuthRoleStaff}
	student := middleware.AuthOptions{Role: middleware.AuthRoleStudent}
	anyUser := middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}

	router.Get("", middleware.WithAuth(h.list, anyUser))
	router.Get("/:id", middleware.WithAuth(h.get, anyUser))
	router.Post("", middleware.WithAuth(h.create, staff))
	router.Patch("/:id", middleware.WithAuth(h.update, staff))
	router.Delete("/:id", middleware.WithAuth(h.delete, staff))
	router.Post("/:id/start", middleware.WithAuth(h.start, student))
}

func (h *AssessmentHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page size")
	}

	req := dto.AssessmentListRequest{
		Search:   c.Query("search"),
		Sort:     c.Query("sort"),
		Page:     page,
		PageSize: pageSize,
	}

	response, err := h.assessments.List(requestContext(c), activityActorFromContext(c), req)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.OK(c, response.Items, "assessments retrieved", response.Pagination)
}

func (h *AssessmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assessment, err := h.assessments.Get(requestContext(c), activityActorFromContext(c), id)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assessment retrieved", assessment)
}

func (h *AssessmentHandler) create(c *fiber.Ctx) error {
	var payload dto.AssessmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	assessment, err := h.assessments.Create(requestContext(c), activityActorFromContext(c), payload)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assessment created", assessment)
}

func (h *AssessmentHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AssessmentUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	assessment, err := h.assessments.Update(requestContext(c), id, payload)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assessment updated", assessment)
}

func (h *AssessmentHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.assessments.Delete(requestContext(c), id); err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assessment deleted", fiber.Map{"id": id})
}

func (h *AssessmentHandler) start(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.submissions.Start(requestContext(c), userIDFromContext(c), id)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission started", submission)
}
