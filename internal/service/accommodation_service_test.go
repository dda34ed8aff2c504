package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

func TestResolveMultiplier(t *testing.T) {
	cases := []struct {
		name  string
		value float64
		want  float64
	}{
		{"missing", 0, 1},
		{"below one", 0.5, 1},
		{"not a number", math.NaN(), 1},
		{"regular", 1.5, 1.5},
		{"at max", 4, 4},
		{"above max", 7, 4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveMultiplier(models.AccessibilityPreferences{ExtendedTimeMultiplier: tc.value}, 4)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestAccommodationResolveUsesCache(t *testing.T) {
	server, client := setupRedis(t)
	db := setupTestDB(t)
	student := createStudent(t, db, "yuni@example.com", 1.5)
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewAccommodationService(repository.NewStudentRepository(db), client, time.Minute, 4, validate, testLogger())

	multiplier, err := svc.Resolve(context.Background(), student.ID)
	require.NoError(t, err)
	require.Equal(t, 1.5, multiplier)
	require.True(t, server.Exists("accommodation:student:1"))

	// A write that bypasses the service is not seen until the entry expires.
	require.NoError(t, db.Model(&models.Student{}).Where("id = ?", student.ID).
		Update("preferences", `{"font_size":1,"tts_speed":1,"extended_time_multiplier":3}`).Error)

	cached, err := svc.Resolve(context.Background(), student.ID)
	require.NoError(t, err)
	require.Equal(t, 1.5, cached)

	server.FastForward(2 * time.Minute)
	fresh, err := svc.Resolve(context.Background(), student.ID)
	require.NoError(t, err)
	require.Equal(t, 3.0, fresh)
}

func TestAccommodationUpdateInvalidatesCache(t *testing.T) {
	server, client := setupRedis(t)
	db := setupTestDB(t)
	student := createStudent(t, db, "zaki@example.com", 1)
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewAccommodationService(repository.NewStudentRepository(db), client, time.Hour, 2, validate, testLogger())

	_, err := svc.Resolve(context.Background(), student.ID)
	require.NoError(t, err)

	multiplier := 3.5
	fontSize := 1.25
	profile, err := svc.UpdateProfile(context.Background(), student.ID, dto.AccommodationUpdateRequest{
		ExtendedTimeMultiplier: &multiplier,
		FontSize:               &fontSize,
		Disabilities:           []string{" Dyslexia "},
	})
	require.NoError(t, err)
	require.Equal(t, 2.0, profile.ResolvedMultiplier)
	require.Equal(t, 3.5, profile.Preferences.ExtendedTimeMultiplier)
	require.Equal(t, 1.25, profile.Preferences.FontSize)
	require.Equal(t, []string{"dyslexia"}, profile.Disabilities)
	require.False(t, server.Exists("accommodation:student:1"))

	resolved, err := svc.Resolve(context.Background(), student.ID)
	require.NoError(t, err)
	require.Equal(t, 2.0, resolved)

	invalid := 9.0
	_, err = svc.UpdateProfile(context.Background(), student.ID, dto.AccommodationUpdateRequest{ExtendedTimeMultiplier: &invalid})
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
}

func TestAccommodationUnknownStudent(t *testing.T) {
	db := setupTestDB(t)
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewAccommodationService(repository.NewStudentRepository(db), nil, time.Minute, 4, validate, testLogger())

	_, err := svc.Resolve(context.Background(), 99)
	require.ErrorIs(t, err, ErrStudentNotFound)

	_, err = svc.GetProfile(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)
}
