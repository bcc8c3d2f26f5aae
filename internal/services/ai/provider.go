package ai

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/strideapp/stride/internal/models"
)

// SummaryProvider is the interface for retrospective generation providers
type SummaryProvider interface {
	// GenerateRetrospective produces a short reflective summary for a
	// finished goal from its facts and progress history
	GenerateRetrospective(ctx context.Context, req *RetrospectiveRequest) (string, error)
}

// RetrospectiveEntry is one progress record included in the prompt
type RetrospectiveEntry struct {
	Value      decimal.Decimal
	Notes      *string
	RecordedAt time.Time
}

// PriorGoal is a condensed earlier iteration of the same goal chain,
// included so the summary can speak to longer-term patterns
type PriorGoal struct {
	Name        string
	Outcome     models.GoalStatus
	TargetValue decimal.Decimal
	FinalValue  decimal.Decimal
}

// RetrospectiveRequest carries everything the provider needs to write a
// summary. It is assembled by the summary service, never from raw user input.
type RetrospectiveRequest struct {
	GoalName          string
	Outcome           models.GoalStatus
	TargetValue       decimal.Decimal
	FinalValue        decimal.Decimal
	Deadline          time.Time
	CreatedAt         time.Time
	AbandonmentReason *string
	ReflectionNotes   *string
	Entries           []RetrospectiveEntry
	PriorGoals        []PriorGoal
}
