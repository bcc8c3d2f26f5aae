package goal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/strideapp/stride/internal/models"
)

// seedChain inserts a linear chain of goals with the given statuses,
// oldest first, and returns them in creation order.
func seedChain(t *testing.T, store *memGoalStore, userID uuid.UUID, statuses ...models.GoalStatus) []*models.Goal {
	t.Helper()
	var parent *uuid.UUID
	goals := make([]*models.Goal, 0, len(statuses))
	for i, status := range statuses {
		g := &models.Goal{
			ID:           uuid.New(),
			UserID:       userID,
			Name:         "chain goal",
			TargetValue:  dec(t, "100"),
			Deadline:     time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0),
			Status:       status,
			ParentGoalID: parent,
		}
		if err := store.Create(context.Background(), g); err != nil {
			t.Fatalf("seed goal: %v", err)
		}
		id := g.ID
		parent = &id
		goals = append(goals, g)
	}
	return goals
}

func TestResolveChain_OrdersByCreation(t *testing.T) {
	t.Parallel()

	store := newMemGoalStore()
	userID := uuid.New()
	goals := seedChain(t, store, userID,
		models.GoalStatusCompletedFailure,
		models.GoalStatusAbandoned,
		models.GoalStatusActive,
	)

	// Resolving from any member yields the same full chain.
	for _, start := range goals {
		chain, err := ResolveChain(context.Background(), store, start)
		if err != nil {
			t.Fatalf("ResolveChain from %s: %v", start.ID, err)
		}
		if len(chain) != len(goals) {
			t.Fatalf("chain length = %d, want %d", len(chain), len(goals))
		}
		for i, member := range chain {
			if member.ID != goals[i].ID {
				t.Errorf("chain[%d] = %s, want %s", i, member.ID, goals[i].ID)
			}
		}
	}
}

func TestResolveChain_CycleGuard(t *testing.T) {
	t.Parallel()

	store := newMemGoalStore()
	userID := uuid.New()
	goals := seedChain(t, store, userID, models.GoalStatusAbandoned, models.GoalStatusAbandoned)

	// Corrupt the data: point the root's parent at its child.
	store.mu.Lock()
	childID := goals[1].ID
	store.goals[goals[0].ID].ParentGoalID = &childID
	store.mu.Unlock()

	root, err := store.GetByID(context.Background(), userID, goals[0].ID)
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	if _, err := ResolveChain(context.Background(), store, root); !errors.Is(err, ErrChainCorrupt) {
		t.Errorf("ResolveChain on cycle = %v, want ErrChainCorrupt", err)
	}
}

func TestValidateForNewIteration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		statuses []models.GoalStatus
		source   int // index into the chain
		wantErr  error
	}{
		{
			name:     "single abandoned goal is retryable",
			statuses: []models.GoalStatus{models.GoalStatusAbandoned},
			source:   0,
		},
		{
			name:     "youngest terminal member passes",
			statuses: []models.GoalStatus{models.GoalStatusCompletedFailure, models.GoalStatusAbandoned},
			source:   1,
		},
		{
			name:     "any active member blocks a new iteration",
			statuses: []models.GoalStatus{models.GoalStatusAbandoned, models.GoalStatusActive},
			source:   0,
			wantErr:  ErrActiveGoalExists,
		},
		{
			name:     "active check fires before youngest check",
			statuses: []models.GoalStatus{models.GoalStatusCompletedFailure, models.GoalStatusActive},
			source:   0,
			wantErr:  ErrActiveGoalExists,
		},
		{
			name:     "non-youngest member is rejected",
			statuses: []models.GoalStatus{models.GoalStatusCompletedFailure, models.GoalStatusCompletedFailure},
			source:   0,
			wantErr:  ErrGoalNotYoungest,
		},
		{
			name: "middle of a three-goal chain is rejected",
			statuses: []models.GoalStatus{
				models.GoalStatusCompletedFailure,
				models.GoalStatusAbandoned,
				models.GoalStatusCompletedFailure,
			},
			source:  1,
			wantErr: ErrGoalNotYoungest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newMemGoalStore()
			userID := uuid.New()
			goals := seedChain(t, store, userID, tt.statuses...)

			err := ValidateForNewIteration(context.Background(), store, goals[tt.source])
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateForNewIteration = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateForNewIteration = %v, want %v", err, tt.wantErr)
			}
			if !IsCode(err, CodeConflict) {
				t.Errorf("code = %s, want %s", CodeOf(err), CodeConflict)
			}
		})
	}
}
