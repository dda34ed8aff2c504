package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// SubmissionHandler manages attempt lifecycle endpoints and the timer stream.
type SubmissionHandler struct {
	service  service.SubmissionService
	grading  service.GradingService
	events   service.SubmissionEvents
	autosave fiber.Handler
	tick     time.Duration
	logger   zerolog.Logger
}

// SubmissionHandlerOptions configures the submission handler.
type SubmissionHandlerOptions struct {
	// Autosave guards the answer endpoint, usually with a rate limiter.
	Autosave fiber.Handler
	// Tick is the timer stream push interval.
	Tick time.Duration
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, grading service.GradingService, events service.SubmissionEvents, opts SubmissionHandlerOptions, logger zerolog.Logger) *SubmissionHandler {
	tick := opts.Tick
	if tick <= 0 {
		tick = time.Second
	}
	autosave := opts.Autosave
	if autosave == nil {
		autosave = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &SubmissionHandler{
		service:  service,
		grading:  grading,
		events:   events,
		autosave: autosave,
		tick:     tick,
		logger:   logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	staff := middleware.AuthOptions{Role: middleware.AuthRoleStaff}
	student := middleware.AuthOptions{Role: middleware.AuthRoleStudent}
	anyUser := middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}

	router.Use("/:id/timer/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("", middleware.WithAuth(h.list, staff))
	router.Get("/:id", middleware.WithAuth(h.get, anyUser))
	router.Put("/:id/answers", h.autosave, middleware.WithAuth(h.upsertAnswer, student))
	router.Post("/:id/pause", middleware.WithAuth(h.pause, student))
	router.Post("/:id/resume", middleware.WithAuth(h.resume, student))
	router.Post("/:id/submit", middleware.WithAuth(h.submit, student))
	router.Get("/:id/timer", middleware.WithAuth(h.timer, anyUser))
	router.Get("/:id/timer/ws", websocket.New(h.timerStream))
	router.Put("/:id/responses/:questionId/score", middleware.WithAuth(h.score, staff))
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	filter := dto.SubmissionFilter{}
	assessmentID, err := parseQueryUint(c, "assessment_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid assessment_id")
	}
	filter.AssessmentID = assessmentID

	studentID, err := parseQueryUint(c, "student_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student_id")
	}
	filter.StudentID = studentID

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		filter.Status = &status
	}

	submissions, err := h.service.List(requestContext(c), filter)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.Get(requestContext(c), activityActorFromContext(c), id)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) upsertAnswer(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AnswerUpsertRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	submission, err := h.service.UpsertAnswer(requestContext(c), userIDFromContext(c), id, payload)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "answer saved", submission)
}

func (h *SubmissionHandler) pause(c *fiber.Ctx) error {
	return h.transition(c, "submission paused", h.service.Pause)
}

func (h *SubmissionHandler) resume(c *fiber.Ctx) error {
	return h.transition(c, "submission resumed", h.service.Resume)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	return h.transition(c, "submission submitted", h.service.Submit)
}

func (h *SubmissionHandler) transition(c *fiber.Ctx, message string, op func(ctx context.Context, callerID, submissionID uint) (dto.SubmissionResponse, error)) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := op(requestContext(c), userIDFromContext(c), id)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, message, submission)
}

func (h *SubmissionHandler) timer(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	timer, err := h.service.Timer(requestContext(c), activityActorFromContext(c), id)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "timer", timer)
}

func (h *SubmissionHandler) score(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ManualScoreRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	submission, err := h.grading.ScoreResponse(requestContext(c), id, questionID, payload, activityActorFromContext(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "score recorded", submission)
}

// timerStream pushes the server-computed countdown every tick and whenever a
// lifecycle event arrives, closing once the attempt is terminal.
func (h *SubmissionHandler) timerStream(conn *websocket.Conn) {
	actor := service.ActivityActor{ID: websocketUserID(conn), Role: websocketUserRole(conn)}
	if actor.ID == 0 {
		closeWithReason(conn, websocket.ClosePolicyViolation, "authentication required")
		return
	}

	parsed, err := strconv.ParseUint(conn.Params("id"), 10, 64)
	if err != nil || parsed == 0 {
		closeWithReason(conn, websocket.CloseUnsupportedData, "invalid id")
		return
	}
	submissionID := uint(parsed)

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	timer, err := h.service.Timer(ctx, actor, submissionID)
	if err != nil {
		closeWithReason(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}

	var events <-chan service.SubmissionEvent
	if h.events != nil {
		stream, cleanup := h.events.Subscribe(submissionID)
		defer cleanup()
		events = stream
	}

	observability.TimerStreamsActive().Inc()
	defer observability.TimerStreamsActive().Dec()

	logger := h.logger.With().Uint("submission_id", submissionID).Uint("user_id", actor.ID).Logger()
	logger.Debug().Msg("timer stream connected")
	defer logger.Debug().Msg("timer stream disconnected")

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(timer); err != nil {
			return
		}
		if timer.Status == models.SubmissionStatusSubmitted || timer.Status == models.SubmissionStatusGraded {
			closeWithReason(conn, websocket.CloseNormalClosure, timer.Status)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		}

		timer, err = h.service.Timer(ctx, actor, submissionID)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn().Err(err).Msg("timer refresh failed")
			}
			return
		}
	}
}

func closeWithReason(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	_ = conn.Close()
}

func websocketUserID(conn *websocket.Conn) uint {
	switch v := conn.Locals("user_id").(type) {
	case uint:
		return v
	case int:
		if v > 0 {
			return uint(v)
		}
	case float64:
		if v > 0 {
			return uint(v)
		}
	}
	return 0
}

func websocketUserRole(conn *websocket.Conn) string {
	role, _ := conn.Locals("user_role").(string)
	return role
}
