package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

func newSeedService(t *testing.T, enabled bool) (SeedService, repository.AssessmentRepository, repository.StudentRepository) {
	t.Helper()
	db := setupTestDB(t)
	students := repository.NewStudentRepository(db)
	assessments := repository.NewAssessmentRepository(db)
	return NewSeedService(students, assessments, enabled, "secret", testLogger()), assessments, students
}

func TestSeedServiceTokenGuard(t *testing.T) {
	svc, _, _ := newSeedService(t, true)

	_, err := svc.SeedStudents(context.Background(), "wrong", []models.Student{{Name: "Test", Email: "t@example.com"}})
	require.ErrorIs(t, err, ErrSeedUnauthorized)

	affected, err := svc.SeedStudents(context.Background(), " secret ", []models.Student{{Name: "Test", Email: "T@Example.com"}})
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	disabled, _, _ := newSeedService(t, false)
	_, err = disabled.SeedStudents(context.Background(), "secret", nil)
	require.ErrorIs(t, err, ErrSeedDisabled)
}

func TestSeedStudentsUpsertsByEmail(t *testing.T) {
	svc, _, students := newSeedService(t, true)

	_, err := svc.SeedStudents(context.Background(), "secret", []models.Student{{Name: "Ayu", Email: "ayu@example.com"}})
	require.NoError(t, err)

	prefs := models.DefaultAccessibilityPreferences()
	prefs.ExtendedTimeMultiplier = 1.5
	_, err = svc.SeedStudents(context.Background(), "secret", []models.Student{{
		Name:        "Ayu Lestari",
		Email:       "AYU@example.com",
		Preferences: datatypes.NewJSONType(prefs),
	}})
	require.NoError(t, err)

	stored, err := students.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "Ayu Lestari", stored.Name)
	require.Equal(t, models.RoleStudent, stored.Role)
	require.Equal(t, 1.5, stored.Preferences.Data().ExtendedTimeMultiplier)
}

func TestSeedAssessmentsNormalizesQuestions(t *testing.T) {
	svc, assessments, _ := newSeedService(t, true)

	affected, err := svc.SeedAssessments(context.Background(), "secret", []models.Assessment{{
		Title:           "Warm up",
		DurationMinutes: 15,
		Questions: []models.AssessmentQuestion{
			{
				Type:           string(grading.TypeSingleChoice),
				Prompt:         "Pick a",
				Options:        datatypes.NewJSONSlice([]grading.Option{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}}),
				CorrectAnswers: datatypes.NewJSONSlice([]int{0}),
			},
			{Type: string(grading.TypeShortAnswer), Prompt: "Why?", Marks: 4},
		},
	}})
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	stored, err := assessments.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.AssessmentPublishDraft, stored.PublishStatus)
	require.Equal(t, 5.0, stored.MaxScore)
	require.Len(t, stored.Questions, 2)
	require.Equal(t, 1, stored.Questions[0].Position)
	require.Equal(t, 1.0, stored.Questions[0].Marks)
}

func TestSeedAssessmentsRejectsBrokenQuestions(t *testing.T) {
	svc, _, _ := newSeedService(t, true)

	_, err := svc.SeedAssessments(context.Background(), "secret", []models.Assessment{{
		Title: "Broken",
		Questions: []models.AssessmentQuestion{
			{Type: string(grading.TypeSingleChoice), Prompt: "No options"},
		},
	}})
	require.ErrorIs(t, err, ErrInvalidQuestionDefinition)
	require.ErrorIs(t, err, ErrValidation)
}
