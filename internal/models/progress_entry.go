package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProgressEntry represents one recorded increment of value toward a goal's
// target. Entries are writable only while the owning goal is active; once
// the goal leaves the active state they persist read-only for history.
type ProgressEntry struct {
	ID        uuid.UUID       `json:"id"`
	GoalID    uuid.UUID       `json:"goal_id"`
	Value     decimal.Decimal `json:"value"`
	Notes     *string         `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
