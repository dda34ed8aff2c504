package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

func TestActivityLogListFiltersAndPaginates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	one, two := uint(1), uint(2)
	entries := []models.ActivityLog{
		{ActorID: 0, ActorRole: models.ActivityRoleSystem, Action: models.ActivityActionAutoSubmitted, EntityType: "submission", EntityID: &one, CreatedAt: base},
		{ActorID: 9, ActorRole: "teacher", Action: models.ActivityActionManuallyGraded, EntityType: "submission", EntityID: &one, CreatedAt: base.Add(time.Hour)},
		{ActorID: 9, ActorRole: "teacher", Action: models.ActivityActionManuallyGraded, EntityType: "submission", EntityID: &two, CreatedAt: base.Add(2 * time.Hour)},
	}
	for i := range entries {
		require.NoError(t, repo.Create(ctx, &entries[i]))
	}

	all, total, err := repo.List(ctx, ActivityLogFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Equal(t, entries[2].ID, all[0].ID)

	actor := uint(9)
	graded, total, err := repo.List(ctx, ActivityLogFilter{ActorID: &actor, Action: models.ActivityActionManuallyGraded})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, graded, 2)

	forOne, total, err := repo.List(ctx, ActivityLogFilter{EntityType: "submission", EntityID: &one})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, forOne, 2)

	since := base.Add(90 * time.Minute)
	recent, total, err := repo.List(ctx, ActivityLogFilter{Since: &since})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, entries[2].ID, recent[0].ID)

	page, total, err := repo.List(ctx, ActivityLogFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, page, 1)
	require.Equal(t, entries[0].ID, page[0].ID)
}
