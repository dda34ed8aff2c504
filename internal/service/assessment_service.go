package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

// Student-facing assessment states.
const (
	StudentStatusUpcoming   = "upcoming"
	StudentStatusInProgress = "in_progress"
	StudentStatusPaused     = "paused"
	StudentStatusCompleted  = "completed"
	StudentStatusGraded     = "graded"
)

// AssessmentService manages the assessment catalog.
type AssessmentService interface {
	List(ctx context.Context, actor ActivityActor, req dto.AssessmentListRequest) (dto.AssessmentListResponse, error)
	Get(ctx context.Context, actor ActivityActor, id uint) (dto.AssessmentResponse, error)
	Create(ctx context.Context, actor ActivityActor, payload dto.AssessmentCreateRequest) (dto.AssessmentResponse, error)
	Update(ctx context.Context, id uint, payload dto.AssessmentUpdateRequest) (dto.AssessmentResponse, error)
	Delete(ctx context.Context, id uint) error
}

type assessmentService struct {
	assessments repository.AssessmentRepository
	submissions repository.SubmissionRepository
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewAssessmentService constructs the catalog service.
func NewAssessmentService(assessments repository.AssessmentRepository, submissions repository.SubmissionRepository, validate *validator.Validate, logger zerolog.Logger) AssessmentService {
	return &assessmentService{
		assessments: assessments,
		submissions: submissions,
		validator:   validate,
		logger:      logger.With().Str("component", "assessment_service").Logger(),
	}
}

func (s *assessmentService) List(ctx context.Context, actor ActivityActor, req dto.AssessmentListRequest) (dto.AssessmentListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AssessmentListResponse{}, err
	}

	filter := repository.AssessmentFilter{
		Search:   req.Search,
		Sort:     req.Sort,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if !actor.IsStaff() {
		filter.PublishStatus = models.AssessmentPublishPublished
	}

	assessments, total, err := s.assessments.List(ctx, filter)
	if err != nil {
		return dto.AssessmentListResponse{}, err
	}

	items := make([]dto.AssessmentResponse, 0, len(assessments))
	for _, assessment := range assessments {
		items = append(items, dto.NewAssessmentResponse(assessment, actor.IsStaff()))
	}

	if !actor.IsStaff() && actor.ID != 0 {
		if err := s.enrichForStudent(ctx, actor.ID, items); err != nil {
			return dto.AssessmentListResponse{}, err
		}
	}

	return dto.AssessmentListResponse{
		Items:      items,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func (s *assessmentService) Get(ctx context.Context, actor ActivityActor, id uint) (dto.AssessmentResponse, error) {
	assessment, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssessmentResponse{}, ErrAssessmentNotFound
		}
		return dto.AssessmentResponse{}, err
	}

	if !actor.IsStaff() && !assessment.IsPublished() {
		return dto.AssessmentResponse{}, ErrAssessmentNotFound
	}

	response := dto.NewAssessmentResponse(assessment, actor.IsStaff())
	if !actor.IsStaff() && actor.ID != 0 {
		items := []dto.AssessmentResponse{response}
		if err := s.enrichForStudent(ctx, actor.ID, items); err != nil {
			return dto.AssessmentResponse{}, err
		}
		response = items[0]
	}

	return response, nil
}

func (s *assessmentService) Create(ctx context.Context, actor ActivityActor, payload dto.AssessmentCreateRequest) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment := models.Assessment{
		Title:           strings.TrimSpace(payload.Title),
		Instructions:    strings.TrimSpace(payload.Instructions),
		Type:            defaultString(payload.Type, "quiz"),
		DurationMinutes: payload.DurationMinutes,
		PublishStatus:   defaultString(payload.PublishStatus, models.AssessmentPublishDraft),
		OwnerTeacherID:  actor.ID,
	}

	var err error
	if assessment.DueDate, err = dto.ParseISOTime(payload.DueDate); err != nil {
		return dto.AssessmentResponse{}, fmt.Errorf("%w: invalid due_date", ErrValidation)
	}
	if assessment.OpenAt, err = dto.ParseISOTime(payload.OpenAt); err != nil {
		return dto.AssessmentResponse{}, fmt.Errorf("%w: invalid open_at", ErrValidation)
	}
	if assessment.CloseAt, err = dto.ParseISOTime(payload.CloseAt); err != nil {
		return dto.AssessmentResponse{}, fmt.Errorf("%w: invalid close_at", ErrValidation)
	}
	if err := validateWindow(assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	questions, maxScore, err := buildQuestions(payload.Questions)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	assessment.Questions = questions
	assessment.MaxScore = maxScore

	if err := s.assessments.Create(ctx, &assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	s.logger.Info().Uint("assessment_id", assessment.ID).Int("questions", len(questions)).Msg("assessment created")

	created, err := s.assessments.GetByID(ctx, assessment.ID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	return dto.NewAssessmentResponse(created, true), nil
}

func (s *assessmentService) Update(ctx context.Context, id uint, payload dto.AssessmentUpdateRequest) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssessmentResponse{}, ErrAssessmentNotFound
		}
		return dto.AssessmentResponse{}, err
	}

	if payload.Title != nil {
		assessment.Title = strings.TrimSpace(*payload.Title)
	}
	if payload.Instructions != nil {
		assessment.Instructions = strings.TrimSpace(*payload.Instructions)
	}
	if payload.Type != nil {
		assessment.Type = *payload.Type
	}
	if payload.DurationMinutes != nil {
		assessment.DurationMinutes = *payload.DurationMinutes
	}
	if payload.PublishStatus != nil {
		assessment.PublishStatus = *payload.PublishStatus
	}
	if payload.DueDate != nil {
		if assessment.DueDate, err = dto.ParseISOTime(payload.DueDate); err != nil {
			return dto.AssessmentResponse{}, fmt.Errorf("%w: invalid due_date", ErrValidation)
		}
	}
	if payload.OpenAt != nil {
		if assessment.OpenAt, err = dto.ParseISOTime(payload.OpenAt); err != nil {
			return dto.AssessmentResponse{}, fmt.Errorf("%w: invalid open_at", ErrValidation)
		}
	}
	if payload.CloseAt != nil {
		if assessment.CloseAt, err = dto.ParseISOTime(payload.CloseAt); err != nil {
			return dto.AssessmentResponse{}, fmt.Errorf("%w: invalid close_at", ErrValidation)
		}
	}
	if err := validateWindow(assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	replaceQuestions := payload.Questions != nil
	if replaceQuestions {
		count, err := s.submissions.CountByAssessment(ctx, id)
		if err != nil {
			return dto.AssessmentResponse{}, err
		}
		if count > 0 {
			return dto.AssessmentResponse{}, ErrAssessmentHasSubmissions
		}

		questions, maxScore, err := buildQuestions(*payload.Questions)
		if err != nil {
			return dto.AssessmentResponse{}, err
		}
		assessment.Questions = questions
		assessment.MaxScore = maxScore
	}

	if err := s.assessments.Update(ctx, &assessment, replaceQuestions); err != nil {
		return dto.AssessmentResponse{}, err
	}

	s.logger.Info().Uint("assessment_id", id).Bool("questions_replaced", replaceQuestions).Msg("assessment updated")

	updated, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	return dto.NewAssessmentResponse(updated, true), nil
}

func (s *assessmentService) Delete(ctx context.Context, id uint) error {
	if _, err := s.assessments.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssessmentNotFound
		}
		return err
	}

	count, err := s.submissions.CountByAssessment(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrAssessmentHasSubmissions
	}

	if err := s.assessments.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssessmentNotFound
		}
		return err
	}

	s.logger.Info().Uint("assessment_id", id).Msg("assessment deleted")
	return nil
}

func (s *assessmentService) enrichForStudent(ctx context.Context, studentID uint, items []dto.AssessmentResponse) error {
	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{StudentID: &studentID})
	if err != nil {
		return err
	}

	// List is newest first, so the first hit per assessment is the latest attempt.
	latest := make(map[uint]models.Submission, len(submissions))
	for _, submission := range submissions {
		if _, seen := latest[submission.AssessmentID]; !seen {
			latest[submission.AssessmentID] = submission
		}
	}

	for i := range items {
		submission, ok := latest[items[i].ID]
		if !ok {
			items[i].StudentStatus = StudentStatusUpcoming
			continue
		}
		id := submission.ID
		items[i].SubmissionID = &id
		items[i].StudentStatus = studentStatus(submission.Status)
		items[i].StudentScore = submission.TotalScore
	}
	return nil
}

func studentStatus(status string) string {
	switch status {
	case models.SubmissionStatusInProgress:
		return StudentStatusInProgress
	case models.SubmissionStatusPaused:
		return StudentStatusPaused
	case models.SubmissionStatusGraded:
		return StudentStatusGraded
	default:
		return StudentStatusCompleted
	}
}

func buildQuestions(requests []dto.AssessmentQuestionRequest) ([]models.AssessmentQuestion, float64, error) {
	questions := make([]models.AssessmentQuestion, 0, len(requests))
	var maxScore float64

	for i, request := range requests {
		options := make([]grading.Option, 0, len(request.Options))
		for _, option := range request.Options {
			options = append(options, grading.Option{ID: strings.TrimSpace(option.ID), Text: option.Text})
		}

		definition := grading.Definition{
			Type:           request.Type,
			Marks:          request.Marks,
			Options:        options,
			CorrectAnswers: request.CorrectAnswers,
		}
		variant, err := grading.NewQuestion(definition)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: question %d: %v", ErrInvalidQuestionDefinition, i+1, err)
		}

		question := models.AssessmentQuestion{
			Position: i + 1,
			Type:     string(variant.Type()),
			Prompt:   strings.TrimSpace(request.Prompt),
			Marks:    variant.Marks(),
		}
		if variant.Type().IsObjective() {
			question.Options = datatypes.NewJSONSlice(options)
			question.CorrectAnswers = datatypes.NewJSONSlice(request.CorrectAnswers)
		}

		maxScore += variant.Marks()
		questions = append(questions, question)
	}

	return questions, maxScore, nil
}

func validateWindow(assessment models.Assessment) error {
	if assessment.OpenAt != nil && assessment.CloseAt != nil && !assessment.OpenAt.Before(*assessment.CloseAt) {
		return fmt.Errorf("%w: open_at must be before close_at", ErrInvalidWindow)
	}
	if assessment.OpenAt != nil && assessment.DueDate != nil && !assessment.OpenAt.Before(*assessment.DueDate) {
		return fmt.Errorf("%w: open_at must be before due_date", ErrInvalidWindow)
	}
	return nil
}

func defaultString(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return strings.ToLower(trimmed)
	}
	return fallback
}
