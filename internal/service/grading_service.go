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
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

// GradingService lets staff fill in scores the grader could not compute.
type GradingService interface {
	ScoreResponse(ctx context.Context, submissionID, questionID uint, payload dto.ManualScoreRequest, actor ActivityActor) (dto.SubmissionResponse, error)
}

type gradingService struct {
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	validator   *validator.Validate
	activity    ActivityRecorder
	events      SubmissionEventPublisher
	logger      zerolog.Logger
	now         func() time.Time
}

// NewGradingService constructs the grading service.
func NewGradingService(submissions repository.SubmissionRepository, assessments repository.AssessmentRepository, validator *validator.Validate, activity ActivityRecorder, events SubmissionEventPublisher, logger zerolog.Logger) GradingService {
	if events == nil {
		events = noopEvents{}
	}
	return &gradingService{
		submissions: submissions,
		assessments: assessments,
		validator:   validator,
		activity:    activity,
		events:      events,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		now:         time.Now,
	}
}

func (s *gradingService) ScoreResponse(ctx context.Context, submissionID, questionID uint, payload dto.ManualScoreRequest, actor ActivityActor) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.manual_score")
	span.SetAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.question_id", int64(questionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrSubmissionNotFound
		}
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}
	if submission.Status != models.SubmissionStatusSubmitted {
		recordSpanError(span, ErrSubmissionNotGradable)
		return dto.SubmissionResponse{}, ErrSubmissionNotGradable
	}

	assessment, err := s.assessments.GetByID(ctx, submission.AssessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrAssessmentNotFound
		}
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}

	marks, err := manualMarks(assessment, questionID)
	if err != nil {
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}

	score := *payload.Score
	if score > marks+1e-9 {
		recordSpanError(span, ErrScoreOutOfRange)
		return dto.SubmissionResponse{}, ErrScoreOutOfRange
	}

	response, found := findResponse(submission, questionID)
	if !found {
		recordSpanError(span, ErrResponseNotFound)
		return dto.SubmissionResponse{}, ErrResponseNotFound
	}
	if response.Score != nil {
		recordSpanError(span, ErrScoreAlreadySet)
		return dto.SubmissionResponse{}, ErrScoreAlreadySet
	}

	gradedAt := s.now().UTC()
	if err := s.submissions.ApplyManualScore(ctx, submission.ID, questionID, score, gradedAt); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			// Either the record left submitted or another grader got there first.
			err = ErrScoreAlreadySet
			if current, lookupErr := s.submissions.GetByID(ctx, submission.ID); lookupErr == nil && current.Status != models.SubmissionStatusSubmitted {
				err = ErrSubmissionNotGradable
			}
		}
		recordSpanError(span, err)
		return dto.SubmissionResponse{}, err
	}

	updated, err := s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_reload_failed")
		return dto.SubmissionResponse{}, err
	}

	if s.activity != nil {
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     models.ActivityActionManuallyGraded,
			EntityType: "submission",
			EntityID:   &submission.ID,
			Metadata: map[string]interface{}{
				"assessment_id": submission.AssessmentID,
				"student_id":    submission.StudentID,
				"question_id":   questionID,
				"score":         score,
				"status":        updated.Status,
			},
		})
	}

	if updated.IsGraded() {
		observability.SubmissionTransitions().WithLabelValues(models.SubmissionStatusSubmitted, models.SubmissionStatusGraded, TriggerGrading).Inc()
		s.events.Publish(ctx, SubmissionEvent{
			SubmissionID: updated.ID,
			StudentID:    updated.StudentID,
			AssessmentID: updated.AssessmentID,
			From:         models.SubmissionStatusSubmitted,
			To:           models.SubmissionStatusGraded,
			Trigger:      TriggerGrading,
		})
	}

	s.logger.Info().
		Uint("submission_id", updated.ID).
		Uint("question_id", questionID).
		Uint("actor_id", actor.ID).
		Str("status", updated.Status).
		Msg("manual score applied")

	span.SetAttributes(
		attribute.Float64("grading.score", score),
		attribute.String("grading.status", updated.Status),
	)

	return dto.NewSubmissionResponse(updated), nil
}

func manualMarks(assessment models.Assessment, questionID uint) (float64, error) {
	for _, stored := range assessment.Questions {
		if stored.ID != questionID {
			continue
		}
		question, err := grading.NewQuestion(stored.Definition())
		if err != nil {
			// Broken definitions are left unscored at finalize, so staff score them.
			if stored.Marks <= 0 {
				return 1, nil
			}
			return stored.Marks, nil
		}
		if question.Type().IsObjective() {
			return 0, ErrObjectiveQuestion
		}
		return question.Marks(), nil
	}
	return 0, ErrQuestionNotInAssessment
}

func findResponse(submission models.Submission, questionID uint) (models.SubmissionResponse, bool) {
	for _, response := range submission.Responses {
		if response.QuestionID == questionID {
			return response, true
		}
	}
	return models.SubmissionResponse{}, false
}
