package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GoalStatus represents the lifecycle status of a goal
type GoalStatus string

const (
	GoalStatusActive           GoalStatus = "active"
	GoalStatusCompletedSuccess GoalStatus = "completed_success"
	GoalStatusCompletedFailure GoalStatus = "completed_failure"
	GoalStatusAbandoned        GoalStatus = "abandoned"
)

// IsTerminal reports whether the status is a final state the automatic
// sync pass never leaves. Everything except active is terminal.
func (s GoalStatus) IsTerminal() bool {
	return s != GoalStatusActive
}

// IsCompleted reports whether the status is one of the two completed states.
func (s GoalStatus) IsCompleted() bool {
	return s == GoalStatusCompletedSuccess || s == GoalStatusCompletedFailure
}

// Goal represents a tracked goal: a target value to reach by a deadline.
// Goals form iteration chains through ParentGoalID (retry/continue lineage).
// Decimal fields are serialized as numeric strings to avoid floating-point
// drift on the wire.
type Goal struct {
	ID                   uuid.UUID       `json:"id"`
	UserID               uuid.UUID       `json:"user_id"`
	Name                 string          `json:"name"`
	TargetValue          decimal.Decimal `json:"target_value"`
	Deadline             time.Time       `json:"deadline"` // calendar date, midnight UTC
	Status               GoalStatus      `json:"status"`
	ParentGoalID         *uuid.UUID      `json:"parent_goal_id,omitempty"`
	ReflectionNotes      *string         `json:"reflection_notes,omitempty"`
	AISummary            *string         `json:"ai_summary,omitempty"`
	AIGenerationAttempts int             `json:"ai_generation_attempts"`
	AbandonmentReason    *string         `json:"abandonment_reason,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}
