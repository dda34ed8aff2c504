// Package deadline holds the time-budget arithmetic behind timed attempts.
// Callers always pass the current time in; nothing here reads the clock.
package deadline

import (
	"math"
	"time"
)

// Budget stretches the base duration by the accommodation multiplier.
// Multipliers below one are treated as one.
func Budget(base time.Duration, multiplier float64) time.Duration {
	if base <= 0 {
		return 0
	}
	if multiplier < 1 || math.IsNaN(multiplier) {
		multiplier = 1
	}
	return time.Duration(math.Round(float64(base) * multiplier))
}

// Remaining is the time left before the deadline and is never negative.
func Remaining(deadlineAt, now time.Time) time.Duration {
	left := deadlineAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Freeze snapshots the remaining budget in whole seconds, truncated so a
// pause never grants extra time.
func Freeze(deadlineAt, now time.Time) int64 {
	return int64(Remaining(deadlineAt, now) / time.Second)
}

// Thaw restarts the clock from a frozen balance.
func Thaw(remainingSeconds int64, now time.Time) time.Time {
	if remainingSeconds < 0 {
		remainingSeconds = 0
	}
	return now.Add(time.Duration(remainingSeconds) * time.Second)
}

// Attempt is the slice of a submission the closing rule needs.
type Attempt struct {
	Active     bool
	DeadlineAt *time.Time
	Budget     time.Duration
}

// Window is the slice of an assessment the closing rule needs.
type Window struct {
	DueDate *time.Time
	CloseAt *time.Time
}

// ClosingInstant returns when a non-terminal attempt must be finalised, or
// nil if nothing bounds it. A running attempt closes at its own deadline. Any
// attempt, paused or not, also closes at the assessment bound: the hard close
// when set, otherwise the due date extended by the attempt's budget.
func ClosingInstant(attempt Attempt, window Window) *time.Time {
	var closing *time.Time

	if attempt.Active && attempt.DeadlineAt != nil {
		at := *attempt.DeadlineAt
		closing = &at
	}

	var bound *time.Time
	switch {
	case window.CloseAt != nil:
		at := *window.CloseAt
		bound = &at
	case window.DueDate != nil:
		at := window.DueDate.Add(attempt.Budget)
		bound = &at
	}

	if bound != nil && (closing == nil || bound.Before(*closing)) {
		closing = bound
	}

	return closing
}

// Expired reports whether the closing instant has been reached.
func Expired(closing *time.Time, now time.Time) bool {
	return closing != nil && !now.Before(*closing)
}
