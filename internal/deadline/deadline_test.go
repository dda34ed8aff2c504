package deadline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBudgetAppliesMultiplier(t *testing.T) {
	require.Equal(t, 60*time.Minute, Budget(30*time.Minute, 2.0))
	require.Equal(t, 45*time.Minute, Budget(30*time.Minute, 1.5))
	require.Equal(t, 30*time.Minute, Budget(30*time.Minute, 0.5), "multipliers below one are ignored")
	require.Zero(t, Budget(0, 2.0))
}

func TestFreezeAndThawRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	deadlineAt := now.Add(3200*time.Second + 700*time.Millisecond)

	remaining := Freeze(deadlineAt, now)
	require.Equal(t, int64(3200), remaining)

	resumedAt := now.Add(2 * time.Hour)
	require.Equal(t, resumedAt.Add(3200*time.Second), Thaw(remaining, resumedAt))
}

func TestFreezeAfterDeadlineIsZero(t *testing.T) {
	now := time.Now()
	require.Zero(t, Freeze(now.Add(-time.Minute), now))
	require.Zero(t, Remaining(now.Add(-time.Second), now))
}

func TestClosingInstant(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	deadlineAt := now.Add(time.Hour)
	due := now.Add(30 * time.Minute)
	closeAt := now.Add(10 * time.Minute)

	t.Run("running attempt closes at its deadline", func(t *testing.T) {
		closing := ClosingInstant(Attempt{Active: true, DeadlineAt: &deadlineAt, Budget: time.Hour}, Window{})
		require.Equal(t, deadlineAt, *closing)
	})

	t.Run("paused attempt without window never closes", func(t *testing.T) {
		closing := ClosingInstant(Attempt{Active: false, Budget: time.Hour}, Window{})
		require.Nil(t, closing)
	})

	t.Run("due date is extended by the budget", func(t *testing.T) {
		closing := ClosingInstant(Attempt{Active: false, Budget: time.Hour}, Window{DueDate: &due})
		require.Equal(t, due.Add(time.Hour), *closing)
	})

	t.Run("hard close wins when earlier", func(t *testing.T) {
		closing := ClosingInstant(Attempt{Active: true, DeadlineAt: &deadlineAt, Budget: time.Hour}, Window{DueDate: &due, CloseAt: &closeAt})
		require.Equal(t, closeAt, *closing)
	})

	t.Run("expiry is inclusive", func(t *testing.T) {
		require.True(t, Expired(&deadlineAt, deadlineAt))
		require.False(t, Expired(&deadlineAt, deadlineAt.Add(-time.Nanosecond)))
		require.False(t, Expired(nil, now))
	})
}
