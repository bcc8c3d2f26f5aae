package goal

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/strideapp/stride/internal/models"
)

// MaxChainDepth bounds chain traversal. parent_goal_id cycles cannot occur
// by construction, but the walk guards against corrupt data anyway.
const MaxChainDepth = 64

// ChainStore is the read surface the chain traversal needs.
type ChainStore interface {
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Goal, error)
	ListByParentID(ctx context.Context, userID, parentID uuid.UUID) ([]*models.Goal, error)
}

// ResolveChain returns every goal in the iteration chain containing g,
// ordered by creation time ascending. The traversal is two-phase: walk
// ancestors to the root, then collect all descendants breadth-first.
func ResolveChain(ctx context.Context, store ChainStore, g *models.Goal) ([]*models.Goal, error) {
	root := g
	visited := map[uuid.UUID]bool{g.ID: true}
	for depth := 0; root.ParentGoalID != nil; depth++ {
		if depth >= MaxChainDepth || visited[*root.ParentGoalID] {
			return nil, Conflict(ErrChainCorrupt)
		}
		parent, err := store.GetByID(ctx, g.UserID, *root.ParentGoalID)
		if err != nil {
			if errors.Is(err, ErrGoalNotFound) {
				// Dangling parent reference: treat the walked-to goal as root.
				break
			}
			return nil, Storage("resolve chain", err)
		}
		visited[parent.ID] = true
		root = parent
	}

	members := []*models.Goal{root}
	seen := map[uuid.UUID]bool{root.ID: true}
	queue := []*models.Goal{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, err := store.ListByParentID(ctx, g.UserID, cur.ID)
		if err != nil {
			return nil, Storage("resolve chain", err)
		}
		for _, c := range children {
			if seen[c.ID] {
				return nil, Conflict(ErrChainCorrupt)
			}
			if len(members) >= MaxChainDepth {
				return nil, Conflict(ErrChainCorrupt)
			}
			seen[c.ID] = true
			members = append(members, c)
			queue = append(queue, c)
		}
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].ID.String() < members[j].ID.String()
		}
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
	return members, nil
}

// ValidateForNewIteration enforces the chain invariants before a retry or
// continue spawns a new iteration from source: no member of the chain may be
// active, and source must be the youngest member. The same check runs for
// plain goal creation with an explicit parent.
func ValidateForNewIteration(ctx context.Context, store ChainStore, source *models.Goal) error {
	chain, err := ResolveChain(ctx, store, source)
	if err != nil {
		return err
	}
	for _, member := range chain {
		if member.Status == models.GoalStatusActive {
			return Conflict(ErrActiveGoalExists)
		}
	}
	youngest := chain[len(chain)-1]
	if youngest.ID != source.ID {
		return Conflict(ErrGoalNotYoungest)
	}
	return nil
}
