package goal

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/strideapp/stride/internal/models"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func entriesOf(t *testing.T, values ...string) []*models.ProgressEntry {
	t.Helper()
	entries := make([]*models.ProgressEntry, 0, len(values))
	for _, v := range values {
		entries = append(entries, &models.ProgressEntry{
			ID:     uuid.New(),
			GoalID: uuid.New(),
			Value:  dec(t, v),
		})
	}
	return entries
}

func TestAggregate_Sum(t *testing.T) {
	t.Parallel()

	deadline := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		values     []string
		target     string
		wantSum    string
		wantCount  int
		wantLocked bool
	}{
		{
			name:      "no entries sums to zero and stays unlocked",
			values:    nil,
			target:    "100",
			wantSum:   "0",
			wantCount: 0,
		},
		{
			name:       "single entry locks the goal",
			values:     []string{"12.5"},
			target:     "100",
			wantSum:    "12.5",
			wantCount:  1,
			wantLocked: true,
		},
		{
			name:       "decimal sum has no float drift",
			values:     []string{"0.1", "0.1", "0.1"},
			target:     "0.3",
			wantSum:    "0.3",
			wantCount:  3,
			wantLocked: true,
		},
		{
			name:       "many small increments stay exact",
			values:     []string{"0.01", "0.02", "0.03", "0.04", "0.05", "0.06", "0.07", "0.08", "0.09", "0.1"},
			target:     "1",
			wantSum:    "0.55",
			wantCount:  10,
			wantLocked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := Aggregate(entriesOf(t, tt.values...), dec(t, tt.target), deadline, now)
			if !r.CurrentValue.Equal(dec(t, tt.wantSum)) {
				t.Errorf("CurrentValue = %s, want %s", r.CurrentValue, tt.wantSum)
			}
			if r.EntryCount != tt.wantCount {
				t.Errorf("EntryCount = %d, want %d", r.EntryCount, tt.wantCount)
			}
			if r.Locked != tt.wantLocked {
				t.Errorf("Locked = %v, want %v", r.Locked, tt.wantLocked)
			}
		})
	}
}

func TestAggregate_RatioAndPercent(t *testing.T) {
	t.Parallel()

	deadline := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		values      []string
		target      string
		wantRatio   string
		wantPercent int64
	}{
		{name: "halfway", values: []string{"50"}, target: "100", wantRatio: "0.5", wantPercent: 50},
		{name: "exactly at target", values: []string{"100"}, target: "100", wantRatio: "1", wantPercent: 100},
		{name: "ratio is unclamped above target", values: []string{"150"}, target: "100", wantRatio: "1.5", wantPercent: 150},
		{name: "percent rounds half away from zero", values: []string{"1"}, target: "3", wantRatio: "0.3333333333333333", wantPercent: 33},
		{name: "zero progress", values: nil, target: "100", wantRatio: "0", wantPercent: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := Aggregate(entriesOf(t, tt.values...), dec(t, tt.target), deadline, now)
			if !r.Ratio.Equal(dec(t, tt.wantRatio)) {
				t.Errorf("Ratio = %s, want %s", r.Ratio, tt.wantRatio)
			}
			if r.Percent != tt.wantPercent {
				t.Errorf("Percent = %d, want %d", r.Percent, tt.wantPercent)
			}
		})
	}
}

func TestAggregate_DaysRemaining(t *testing.T) {
	t.Parallel()

	deadline := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{name: "ten days out", now: time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC), want: 10},
		{name: "deadline day counts as zero", now: time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC), want: 0},
		{name: "past deadline goes negative", now: time.Date(2026, 3, 12, 1, 0, 0, 0, time.UTC), want: -2},
		{name: "time of day is ignored", now: time.Date(2026, 3, 9, 23, 59, 59, 0, time.UTC), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := Aggregate(nil, dec(t, "100"), deadline, tt.now)
			if r.DaysRemaining != tt.want {
				t.Errorf("DaysRemaining = %d, want %d", r.DaysRemaining, tt.want)
			}
		})
	}
}
