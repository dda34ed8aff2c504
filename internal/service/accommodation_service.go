package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

const (
	minTimeMultiplier     = 1.0
	defaultMaxMultiplier  = 4.0
	accommodationCacheKey = "accommodation:student:%d"
)

// AccommodationResolver turns a student's profile into the time multiplier
// applied to a new attempt.
type AccommodationResolver interface {
	Resolve(ctx context.Context, studentID uint) (float64, error)
}

// AccommodationService resolves multipliers and manages accessibility profiles.
type AccommodationService interface {
	AccommodationResolver
	GetProfile(ctx context.Context, studentID uint) (dto.AccommodationProfileResponse, error)
	UpdateProfile(ctx context.Context, studentID uint, payload dto.AccommodationUpdateRequest) (dto.AccommodationProfileResponse, error)
}

type accommodationService struct {
	students      repository.StudentRepository
	cache         *redis.Client
	cacheTTL      time.Duration
	maxMultiplier float64
	validator     *validator.Validate
	logger        zerolog.Logger
}

// NewAccommodationService constructs the resolver. A nil cache disables caching.
func NewAccommodationService(students repository.StudentRepository, cache *redis.Client, ttl time.Duration, maxMultiplier float64, validate *validator.Validate, logger zerolog.Logger) AccommodationService {
	if maxMultiplier < minTimeMultiplier {
		maxMultiplier = defaultMaxMultiplier
	}
	return &accommodationService{
		students:      students,
		cache:         cache,
		cacheTTL:      ttl,
		maxMultiplier: maxMultiplier,
		validator:     validate,
		logger:        logger.With().Str("component", "accommodation_service").Logger(),
	}
}

// ResolveMultiplier applies the profile rules: missing or sub-1 values
// become 1 and values above max are clamped.
func ResolveMultiplier(preferences models.AccessibilityPreferences, max float64) float64 {
	value := preferences.ExtendedTimeMultiplier
	if math.IsNaN(value) || value < minTimeMultiplier {
		return minTimeMultiplier
	}
	if max >= minTimeMultiplier && value > max {
		return max
	}
	return value
}

func (s *accommodationService) Resolve(ctx context.Context, studentID uint) (float64, error) {
	cacheKey := fmt.Sprintf(accommodationCacheKey, studentID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			if value, parseErr := strconv.ParseFloat(cached, 64); parseErr == nil {
				s.logger.Debug().Uint("student_id", studentID).Msg("accommodation cache hit")
				return value, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read accommodation cache")
		}
	}

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrStudentNotFound
		}
		return 0, err
	}

	multiplier := ResolveMultiplier(student.Preferences.Data(), s.maxMultiplier)

	if s.cache != nil {
		payload := strconv.FormatFloat(multiplier, 'f', -1, 64)
		if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to store accommodation cache")
		}
	}

	return multiplier, nil
}

func (s *accommodationService) GetProfile(ctx context.Context, studentID uint) (dto.AccommodationProfileResponse, error) {
	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AccommodationProfileResponse{}, ErrStudentNotFound
		}
		return dto.AccommodationProfileResponse{}, err
	}

	return s.profileResponse(student), nil
}

func (s *accommodationService) UpdateProfile(ctx context.Context, studentID uint, payload dto.AccommodationUpdateRequest) (dto.AccommodationProfileResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AccommodationProfileResponse{}, err
	}

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AccommodationProfileResponse{}, ErrStudentNotFound
		}
		return dto.AccommodationProfileResponse{}, err
	}

	preferences := student.Preferences.Data()
	if payload.FontSize != nil {
		preferences.FontSize = *payload.FontSize
	}
	if payload.TTSSpeed != nil {
		preferences.TTSSpeed = *payload.TTSSpeed
	}
	if payload.ExtendedTimeMultiplier != nil {
		preferences.ExtendedTimeMultiplier = *payload.ExtendedTimeMultiplier
	}
	if payload.ContrastMode != nil {
		preferences.ContrastMode = *payload.ContrastMode
	}
	if payload.ScreenReader != nil {
		preferences.ScreenReader = strings.TrimSpace(*payload.ScreenReader)
	}

	var disabilities []string
	if payload.Disabilities != nil {
		disabilities = make([]string, 0, len(payload.Disabilities))
		for _, item := range payload.Disabilities {
			disabilities = append(disabilities, strings.ToLower(strings.TrimSpace(item)))
		}
	}

	updated, err := s.students.UpdatePreferences(ctx, studentID, preferences, disabilities)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AccommodationProfileResponse{}, ErrStudentNotFound
		}
		return dto.AccommodationProfileResponse{}, err
	}

	s.invalidate(ctx, studentID)
	s.logger.Info().Uint("student_id", studentID).Float64("multiplier", ResolveMultiplier(preferences, s.maxMultiplier)).Msg("accommodation profile updated")

	return s.profileResponse(updated), nil
}

func (s *accommodationService) invalidate(ctx context.Context, studentID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, fmt.Sprintf(accommodationCacheKey, studentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("student_id", studentID).Msg("failed to invalidate accommodation cache")
	}
}

func (s *accommodationService) profileResponse(student models.Student) dto.AccommodationProfileResponse {
	preferences := student.Preferences.Data()
	disabilities := []string(student.Disabilities)
	if disabilities == nil {
		disabilities = []string{}
	}
	return dto.AccommodationProfileResponse{
		StudentID:          student.ID,
		Preferences:        preferences,
		Disabilities:       disabilities,
		ResolvedMultiplier: ResolveMultiplier(preferences, s.maxMultiplier),
	}
}
