package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

type memoryActivityRepo struct {
	entries []models.ActivityLog
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	return append([]models.ActivityLog(nil), m.entries...), int64(len(m.entries)), nil
}

func TestActivityServiceRecordMasksEmail(t *testing.T) {
	repo := &memoryActivityRepo{}
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewActivityService(repo, validate, testLogger())

	entry, err := svc.Record(context.Background(), ActivityEntry{
		ActorID:    1,
		ActorRole:  "Admin",
		Action:     "Accommodation.Updated",
		EntityType: "student",
		EntityID:   ptrUint(5),
		Metadata: map[string]interface{}{
			"email":      "student@example.com",
			"seed_token": "secret",
			"multiplier": 1.5,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "s***t@example.com", entry.Metadata["email"])
	require.Equal(t, "***", entry.Metadata["seed_token"])
	require.Equal(t, 1.5, entry.Metadata["multiplier"])
	require.Equal(t, "accommodation.updated", entry.Action)
	require.Equal(t, "admin", entry.ActorRole)
}

func TestActivityServiceRecordRequiresActionAndEntity(t *testing.T) {
	svc := NewActivityService(&memoryActivityRepo{}, validator.New(), testLogger())

	_, err := svc.Record(context.Background(), ActivityEntry{EntityType: "submission"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Record(context.Background(), ActivityEntry{Action: "submission.graded"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestMaskEmailAddress(t *testing.T) {
	require.Equal(t, "a***@x.io", maskEmailAddress("ab@x.io"))
	require.Equal(t, "r***a@school.id", maskEmailAddress(" Rina@School.id "))
	require.Equal(t, "***", maskEmailAddress("not-an-email"))
	require.Empty(t, maskEmailAddress(""))
}

func ptrUint(v uint) *uint {
	return &v
}
