package goal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/strideapp/stride/internal/models"
)

// Rollup is the aggregate view of a goal's progress entries.
type Rollup struct {
	CurrentValue  decimal.Decimal `json:"current_value"`
	EntryCount    int             `json:"entry_count"`
	Ratio         decimal.Decimal `json:"progress_ratio"` // current/target, unclamped
	Percent       int64           `json:"progress_percent"`
	Locked        bool            `json:"is_locked"`
	DaysRemaining int             `json:"days_remaining"` // negative once past the deadline
}

// Aggregate computes a goal's rollup from its progress entries. Summation is
// decimal-exact; float64 must never enter this path. With no entries the
// current value is zero and the goal is unlocked.
func Aggregate(entries []*models.ProgressEntry, target decimal.Decimal, deadline, now time.Time) Rollup {
	current := decimal.Zero
	for _, e := range entries {
		current = current.Add(e.Value)
	}

	ratio := decimal.Zero
	if target.IsPositive() {
		ratio = current.Div(target)
	}

	return Rollup{
		CurrentValue:  current,
		EntryCount:    len(entries),
		Ratio:         ratio,
		Percent:       ratio.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Locked:        len(entries) >= 1,
		DaysRemaining: daysBetween(now, deadline),
	}
}

// daysBetween returns deadline minus now in whole calendar days, comparing
// the two calendar dates in the deadline's location.
func daysBetween(now, deadline time.Time) int {
	loc := deadline.Location()
	ny, nm, nd := now.In(loc).Date()
	dy, dm, dd := deadline.Date()
	nowDate := time.Date(ny, nm, nd, 0, 0, 0, 0, loc)
	deadlineDate := time.Date(dy, dm, dd, 0, 0, 0, 0, loc)
	return int(deadlineDate.Sub(nowDate).Hours() / 24)
}
