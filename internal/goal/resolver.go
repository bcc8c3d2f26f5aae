package goal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/strideapp/stride/internal/models"
)

// Resolve decides the next status for a goal, or reports no change. It is a
// pure function; now is always injected so deadline boundaries can be tested
// with fixed clocks.
//
// Rules, in order:
//  1. abandoned is sticky forever
//  2. completed states are terminal and idempotent
//  3. success is never auto-applied: reaching the target while active does
//     not change status (completion is an explicit user action)
//  4. strictly after the end of the deadline day with the target unmet, the
//     goal fails
//
// The manual-success / automatic-failure asymmetry is a product rule.
func Resolve(current models.GoalStatus, currentValue, targetValue decimal.Decimal, deadline, now time.Time) (models.GoalStatus, bool) {
	switch current {
	case models.GoalStatusAbandoned:
		return current, false
	case models.GoalStatusCompletedSuccess, models.GoalStatusCompletedFailure:
		return current, false
	}

	if now.After(EndOfDeadlineDay(deadline)) && currentValue.LessThan(targetValue) {
		return models.GoalStatusCompletedFailure, true
	}

	return current, false
}

// EndOfDeadlineDay returns the last instant of the deadline's calendar day
// (23:59:59.999999999) in the deadline's location. Deadlines are stored as
// dates at midnight UTC, so in practice the day boundary is UTC.
func EndOfDeadlineDay(deadline time.Time) time.Time {
	y, m, d := deadline.Date()
	return time.Date(y, m, d, 23, 59, 59, 999999999, deadline.Location())
}

// DateOnly normalizes a timestamp to midnight UTC of its calendar day, the
// canonical storage form for deadlines.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
