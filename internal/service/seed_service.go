package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
)

// SeedService loads demo students and assessments into non-production environments.
type SeedService interface {
	SeedStudents(ctx context.Context, token string, items []models.Student) (int64, error)
	SeedAssessments(ctx context.Context, token string, items []models.Assessment) (int64, error)
}

type seedService struct {
	students    repository.StudentRepository
	assessments repository.AssessmentRepository
	enabled     bool
	token       string
	logger      zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(students repository.StudentRepository, assessments repository.AssessmentRepository, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		students:    students,
		assessments: assessments,
		enabled:     enabled,
		token:       token,
		logger:      logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedStudents(ctx context.Context, token string, items []models.Student) (int64, error) {
	if err := s.guard(token); err != nil {
		return 0, err
	}

	affected, err := s.students.UpsertBatch(ctx, normalizeStudents(items))
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("affected", affected).Msg("students seeded")
	return affected, nil
}

func (s *seedService) SeedAssessments(ctx context.Context, token string, items []models.Assessment) (int64, error) {
	if err := s.guard(token); err != nil {
		return 0, err
	}

	var affected int64
	for i := range items {
		assessment := normalizeAssessment(items[i])
		if _, err := assessment.Variants(); err != nil {
			return affected, fmt.Errorf("%w: %s: %v", ErrInvalidQuestionDefinition, assessment.Title, err)
		}
		if err := s.assessments.Create(ctx, &assessment); err != nil {
			return affected, err
		}
		affected++
	}

	s.logger.Info().Int64("affected", affected).Msg("assessments seeded")
	return affected, nil
}

func (s *seedService) guard(token string) error {
	if !s.enabled {
		return ErrSeedDisabled
	}
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return ErrSeedUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) != 1 {
		return ErrSeedUnauthorized
	}
	return nil
}

func normalizeStudents(items []models.Student) []models.Student {
	for i := range items {
		items[i].Email = strings.ToLower(strings.TrimSpace(items[i].Email))
		if items[i].Role == "" {
			items[i].Role = models.RoleStudent
		}
		if items[i].Preferences.Data() == (models.AccessibilityPreferences{}) {
			items[i].Preferences = datatypes.NewJSONType(models.DefaultAccessibilityPreferences())
		}
	}
	return items
}

func normalizeAssessment(item models.Assessment) models.Assessment {
	item.ID = 0
	if item.PublishStatus == "" {
		item.PublishStatus = models.AssessmentPublishDraft
	}
	var maxScore float64
	for i := range item.Questions {
		item.Questions[i].ID = 0
		item.Questions[i].Position = i + 1
		if item.Questions[i].Marks <= 0 {
			item.Questions[i].Marks = 1
		}
		maxScore += item.Questions[i].Marks
	}
	item.MaxScore = maxScore
	return item
}
