package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/deadline"
	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

const statusAbsent = "absent"

// SubmissionService drives the attempt lifecycle:
// absent -> in_progress <-> paused -> submitted -> graded.
type SubmissionService interface {
	Start(ctx context.Context, studentID, assessmentID uint) (dto.SubmissionResponse, error)
	UpsertAnswer(ctx context.Context, callerID, submissionID uint, payload dto.AnswerUpsertRequest) (dto.SubmissionResponse, error)
	Pause(ctx context.Context, callerID, submissionID uint) (dto.SubmissionResponse, error)
	Resume(ctx context.Context, callerID, submissionID uint) (dto.SubmissionResponse, error)
	Submit(ctx context.Context, callerID, submissionID uint) (dto.SubmissionResponse, error)
	Get(ctx context.Context, actor ActivityActor, submissionID uint) (dto.SubmissionResponse, error)
	List(ctx context.Context, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error)
	Timer(ctx context.Context, actor ActivityActor, submissionID uint) (dto.TimerResponse, error)
}

// SubmissionDependencies groups the collaborators of the lifecycle manager.
type SubmissionDependencies struct {
	Submissions repository.SubmissionRepository
	Assessments repository.AssessmentRepository
	Resolver    AccommodationResolver
	Answers     AnswerStore
	Enforcer    DeadlineEnforcer
	Events      SubmissionEventPublisher
	Validator   *validator.Validate
	Logger      zerolog.Logger
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	resolver    AccommodationResolver
	answers     AnswerStore
	enforcer    DeadlineEnforcer
	events      SubmissionEventPublisher
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(deps SubmissionDependencies) SubmissionService {
	events := deps.Events
	if events == nil {
		events = noopEvents{}
	}
	return &submissionService{
		submissions: deps.Submissions,
		assessments: deps.Assessments,
		resolver:    deps.Resolver,
		answers:     deps.Answers,
		enforcer:    deps.Enforcer,
		events:      events,
		validator:   deps.Validator,
		logger:      deps.Logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/submission"),
		now:         time.Now,
	}
}

func (s *submissionService) Start(ctx context.Context, studentID, assessmentID uint) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.start", trace.WithAttributes(
		attribute.Int64("submission.student_id", int64(studentID)),
		attribute.Int64("submission.assessment_id", int64(assessmentID)),
	))
	defer span.End()

	submission, err := s.start(ctx, studentID, assessmentID)
	if err != nil {
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}
	span.SetAttributes(attribute.Int64("submission.id", int64(submission.ID)), attribute.String("submission.status", submission.Status))
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) start(ctx context.Context, studentID, assessmentID uint) (models.Submission, error) {
	assessment, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrAssessmentNotFound
		}
		return models.Submission{}, err
	}

	now := s.now().UTC()
	switch {
	case !assessment.IsPublished():
		return models.Submission{}, ErrAssessmentNotPublished
	case !assessment.IsOpen(now):
		return models.Submission{}, ErrAssessmentNotOpen
	}

	existing, err := s.submissions.GetLatestForPair(ctx, studentID, assessmentID)
	switch {
	case err == nil:
		current, _, err := s.enforcer.Enforce(ctx, existing, assessment, TriggerEnforce)
		if err != nil {
			return models.Submission{}, err
		}
		if current.Status == models.SubmissionStatusPaused {
			resumed, err := s.resume(ctx, current, TriggerStart)
			if errors.Is(err, ErrSubmissionNotPaused) {
				// A concurrent start or resume won the swap.
				return s.existingForPair(ctx, studentID, assessmentID)
			}
			return resumed, err
		}
		// Running attempts are returned as is; terminal ones too, since a
		// student gets a single attempt per assessment.
		return current, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return models.Submission{}, err
	}

	// The due date only gates new attempts. One already underway runs until
	// its closing instant, the same bound Resume enforces.
	if assessment.IsPastDue(now) {
		return models.Submission{}, ErrAssessmentPastDue
	}

	multiplier, err := s.resolver.Resolve(ctx, studentID)
	if err != nil {
		return models.Submission{}, err
	}

	submission := models.Submission{
		AssessmentID:          assessmentID,
		StudentID:             studentID,
		Status:                models.SubmissionStatusInProgress,
		AppliedTimeMultiplier: multiplier,
		TimeStartedAt:         now,
	}
	if budget := deadline.Budget(assessment.BaseDuration(), multiplier); budget > 0 {
		deadlineAt := now.Add(budget)
		submission.DeadlineAt = &deadlineAt
	}

	if err := s.submissions.CreateActive(ctx, &submission); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.logger.Debug().Uint("student_id", studentID).Uint("assessment_id", assessmentID).Msg("concurrent start detected, returning winner")
			return s.existingForPair(ctx, studentID, assessmentID)
		}
		return models.Submission{}, err
	}

	observability.SubmissionTransitions().WithLabelValues(statusAbsent, models.SubmissionStatusInProgress, TriggerStart).Inc()
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("student_id", studentID).
		Uint("assessment_id", assessmentID).
		Float64("multiplier", multiplier).
		Msg("submission started")
	s.publish(ctx, submission, statusAbsent, models.SubmissionStatusInProgress, TriggerStart)

	return s.reload(ctx, submission.ID)
}

func (s *submissionService) existingForPair(ctx context.Context, studentID, assessmentID uint) (models.Submission, error) {
	winner, err := s.submissions.GetActiveForPair(ctx, studentID, assessmentID)
	if err == nil {
		return winner, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Submission{}, err
	}
	// The winner may already have been finalized.
	return s.submissions.GetLatestForPair(ctx, studentID, assessmentID)
}

func (s *submissionService) UpsertAnswer(ctx context.Context, callerID, submissionID uint, payload dto.AnswerUpsertRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.upsert_answer", trace.WithAttributes(
		attribute.Int64("submission.id", int64(submissionID)),
		attribute.Int64("submission.question_id", int64(payload.QuestionID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}

	submission, assessment, expired, err := s.loadOwned(ctx, ActivityActor{ID: callerID}, submissionID)
	if err != nil {
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}
	if expired || submission.Status != models.SubmissionStatusInProgress {
		recordSpanError(span, ErrSubmissionNotInProgress)
		return dto.SubmissionResponse{}, ErrSubmissionNotInProgress
	}

	question, err := questionFor(assessment, payload.QuestionID)
	if err != nil {
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}

	declared, err := grading.ParseQuestionType(payload.ResponseType)
	if err != nil || declared != question.Type() {
		recordSpanError(span, ErrResponseTypeMismatch)
		return dto.SubmissionResponse{}, ErrResponseTypeMismatch
	}

	if _, err := s.answers.Upsert(ctx, submission.ID, question, payload.AnswerValue); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			err = ErrSubmissionNotInProgress
		}
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}

	updated, err := s.reload(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(updated), nil
}

func (s *submissionService) Pause(ctx context.Context, callerID, submissionID uint) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.pause", trace.WithAttributes(attribute.Int64("submission.id", int64(submissionID))))
	defer span.End()

	submission, _, expired, err := s.loadOwned(ctx, ActivityActor{ID: callerID}, submissionID)
	if err != nil {
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}
	if expired || submission.Status != models.SubmissionStatusInProgress {
		recordSpanError(span, ErrSubmissionNotInProgress)
		return dto.SubmissionResponse{}, ErrSubmissionNotInProgress
	}

	now := s.now().UTC()
	updates := map[string]interface{}{
		"status":    models.SubmissionStatusPaused,
		"paused_at": now,
	}
	if submission.DeadlineAt != nil {
		updates["remaining_seconds"] = deadline.Freeze(*submission.DeadlineAt, now)
	}

	if err := s.submissions.Transition(ctx, submission.ID, models.SubmissionStatusInProgress, updates); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			err = ErrSubmissionNotInProgress
		}
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}

	observability.SubmissionTransitions().WithLabelValues(models.SubmissionStatusInProgress, models.SubmissionStatusPaused, TriggerStudent).Inc()
	s.publish(ctx, submission, models.SubmissionStatusInProgress, models.SubmissionStatusPaused, TriggerStudent)

	updated, err := s.reload(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	s.logger.Info().Uint("submission_id", updated.ID).Interface("remaining_seconds", updated.RemainingSeconds).Msg("submission paused")
	return dto.NewSubmissionResponse(updated), nil
}

func (s *submissionService) Resume(ctx context.Context, callerID, submissionID uint) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.resume", trace.WithAttributes(attribute.Int64("submission.id", int64(submissionID))))
	defer span.End()

	submission, _, expired, err := s.loadOwned(ctx, ActivityActor{ID: callerID}, submissionID)
	if err != nil {
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}
	if expired {
		recordSpanError(span, ErrSubmissionNotPaused)
		return dto.SubmissionResponse{}, ErrSubmissionNotPaused
	}

	resumed, err := s.resume(ctx, submission, TriggerStudent)
	if err != nil {
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(resumed), nil
}

func (s *submissionService) resume(ctx context.Context, submission models.Submission, trigger string) (models.Submission, error) {
	if submission.Status != models.SubmissionStatusPaused {
		return models.Submission{}, ErrSubmissionNotPaused
	}

	now := s.now().UTC()
	updates := map[string]interface{}{
		"status":            models.SubmissionStatusInProgress,
		"paused_at":         nil,
		"remaining_seconds": nil,
	}
	if submission.RemainingSeconds != nil {
		updates["deadline_at"] = deadline.Thaw(*submission.RemainingSeconds, now)
	}

	if err := s.submissions.Transition(ctx, submission.ID, models.SubmissionStatusPaused, updates); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return models.Submission{}, ErrSubmissionNotPaused
		}
		return models.Submission{}, err
	}

	observability.SubmissionTransitions().WithLabelValues(models.SubmissionStatusPaused, models.SubmissionStatusInProgress, trigger).Inc()
	s.publish(ctx, submission, models.SubmissionStatusPaused, models.SubmissionStatusInProgress, trigger)
	s.logger.Info().Uint("submission_id", submission.ID).Str("trigger", trigger).Msg("submission resumed")

	return s.reload(ctx, submission.ID)
}

func (s *submissionService) Submit(ctx context.Context, callerID, submissionID uint) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.submit", trace.WithAttributes(attribute.Int64("submission.id", int64(submissionID))))
	defer span.End()

	submission, assessment, _, err := s.loadOwned(ctx, ActivityActor{ID: callerID}, submissionID)
	if err != nil {
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}
	if submission.IsTerminal() {
		span.SetAttributes(attribute.Bool("submission.idempotent", true))
		return dto.NewSubmissionResponse(submission), nil
	}

	now := s.now().UTC()
	from := submission.Status
	err = finalizeSubmission(ctx, s.submissions, submission, assessment, finalizeOptions{
		SubmittedAt: now,
		GradedAt:    now,
	}, s.logger)
	won := err == nil
	if err != nil && !errors.Is(err, repository.ErrStatusConflict) {
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}

	updated, err := s.reload(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if !won {
		span.SetAttributes(attribute.Bool("submission.idempotent", true))
		return dto.NewSubmissionResponse(updated), nil
	}

	observability.SubmissionTransitions().WithLabelValues(from, models.SubmissionStatusSubmitted, TriggerStudent).Inc()
	s.publish(ctx, submission, from, updated.Status, TriggerStudent)
	s.logger.Info().Uint("submission_id", updated.ID).Str("status", updated.Status).Interface("total_score", updated.TotalScore).Msg("submission finalized")
	return dto.NewSubmissionResponse(updated), nil
}

func (s *submissionService) Get(ctx context.Context, actor ActivityActor, submissionID uint) (dto.SubmissionResponse, error) {
	submission, _, _, err := s.loadOwned(ctx, actor, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) List(ctx context.Context, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{
		AssessmentID: filter.AssessmentID,
		StudentID:    filter.StudentID,
		Status:       filter.Status,
	})
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) Timer(ctx context.Context, actor ActivityActor, submissionID uint) (dto.TimerResponse, error) {
	submission, assessment, _, err := s.loadOwned(ctx, actor, submissionID)
	if err != nil {
		return dto.TimerResponse{}, err
	}

	now := s.now().UTC()
	timer := dto.TimerResponse{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		ServerTime:   now,
	}

	switch submission.Status {
	case models.SubmissionStatusInProgress:
		if closing := closingInstant(submission, assessment); closing != nil {
			remaining := deadline.Freeze(*closing, now)
			at := closing.UTC()
			timer.RemainingSeconds = &remaining
			timer.DeadlineAt = &at
		}
	case models.SubmissionStatusPaused:
		timer.RemainingSeconds = submission.RemainingSeconds
		// The frozen balance cannot outlast the assessment bound.
		if bound := closingInstant(submission, assessment); bound != nil {
			capped := deadline.Freeze(*bound, now)
			if timer.RemainingSeconds == nil || capped < *timer.RemainingSeconds {
				timer.RemainingSeconds = &capped
			}
		}
	default:
		if submission.DeadlineAt != nil {
			var zero int64
			timer.RemainingSeconds = &zero
		}
	}

	return timer, nil
}

// loadOwned fetches a submission the actor may act on and runs deadline
// enforcement before any state check.
func (s *submissionService) loadOwned(ctx context.Context, actor ActivityActor, submissionID uint) (models.Submission, models.Assessment, bool, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, models.Assessment{}, false, ErrSubmissionNotFound
		}
		return models.Submission{}, models.Assessment{}, false, err
	}

	if submission.StudentID != actor.ID && !actor.IsStaff() {
		return models.Submission{}, models.Assessment{}, false, ErrNotSubmissionOwner
	}

	assessment, err := s.assessments.GetByID(ctx, submission.AssessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, models.Assessment{}, false, ErrAssessmentNotFound
		}
		return models.Submission{}, models.Assessment{}, false, err
	}

	current, expired, err := s.enforcer.Enforce(ctx, submission, assessment, TriggerEnforce)
	if err != nil {
		return models.Submission{}, models.Assessment{}, false, err
	}
	return current, assessment, expired, nil
}

func (s *submissionService) reload(ctx context.Context, id uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}

func (s *submissionService) publish(ctx context.Context, submission models.Submission, from, to, trigger string) {
	s.events.Publish(ctx, SubmissionEvent{
		SubmissionID: submission.ID,
		StudentID:    submission.StudentID,
		AssessmentID: submission.AssessmentID,
		From:         from,
		To:           to,
		Trigger:      trigger,
	})
}

func questionFor(assessment models.Assessment, questionID uint) (grading.Question, error) {
	for _, stored := range assessment.Questions {
		if stored.ID != questionID {
			continue
		}
		question, err := grading.NewQuestion(stored.Definition())
		if err != nil {
			return nil, ErrInvalidQuestionDefinition
		}
		return question, nil
	}
	return nil, ErrQuestionNotInAssessment
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	switch {
	case errors.Is(err, ErrNotFound):
		span.SetStatus(codes.Error, "not_found")
	case errors.Is(err, ErrUnauthorized):
		span.SetStatus(codes.Error, "unauthorized")
	case errors.Is(err, ErrInvalidTransition):
		span.SetStatus(codes.Error, "invalid_transition")
	case errors.Is(err, ErrValidation):
		span.SetStatus(codes.Error, "validation_failed")
	default:
		span.SetStatus(codes.Error, err.Error())
	}
}
