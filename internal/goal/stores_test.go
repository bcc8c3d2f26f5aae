package goal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strideapp/stride/internal/models"
)

// In-memory stores backing the service tests. Creation timestamps advance a
// fixed step per insert so chain ordering is deterministic.

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type memGoalStore struct {
	mu    sync.Mutex
	goals map[uuid.UUID]*models.Goal
	seq   int
}

func newMemGoalStore() *memGoalStore {
	return &memGoalStore{goals: make(map[uuid.UUID]*models.Goal)}
}

func (s *memGoalStore) Create(_ context.Context, g *models.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	g.CreatedAt = testEpoch.Add(time.Duration(s.seq) * time.Minute)
	g.UpdatedAt = g.CreatedAt
	cp := *g
	s.goals[g.ID] = &cp
	return nil
}

func (s *memGoalStore) GetByID(_ context.Context, userID, id uuid.UUID) (*models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok || g.UserID != userID {
		return nil, ErrGoalNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *memGoalStore) ListByParentID(_ context.Context, userID, parentID uuid.UUID) ([]*models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Goal
	for _, g := range s.goals {
		if g.UserID == userID && g.ParentGoalID != nil && *g.ParentGoalID == parentID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memGoalStore) Update(_ context.Context, g *models.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.goals[g.ID]
	if !ok || cur.UserID != g.UserID {
		return ErrGoalNotFound
	}
	g.UpdatedAt = cur.UpdatedAt.Add(time.Second)
	cp := *g
	s.goals[g.ID] = &cp
	return nil
}

func (s *memGoalStore) UpdateStatus(_ context.Context, g *models.Goal, expect models.GoalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.goals[g.ID]
	if !ok || cur.UserID != g.UserID {
		return ErrGoalNotFound
	}
	if cur.Status != expect {
		return ErrGoalNotActive
	}
	cur.Status = g.Status
	cur.AbandonmentReason = g.AbandonmentReason
	cur.UpdatedAt = cur.UpdatedAt.Add(time.Second)
	return nil
}

func (s *memGoalStore) Delete(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok || g.UserID != userID {
		return ErrGoalNotFound
	}
	delete(s.goals, id)
	return nil
}

func (s *memGoalStore) ListByUserID(_ context.Context, userID uuid.UUID, status *models.GoalStatus, page, pageSize int) ([]*models.Goal, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*models.Goal
	for _, g := range s.goals {
		if g.UserID != userID {
			continue
		}
		if status != nil && g.Status != *status {
			continue
		}
		cp := *g
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (s *memGoalStore) ListActiveByUserID(_ context.Context, userID uuid.UUID, ids []uuid.UUID, limit int) ([]*models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*models.Goal
	for _, g := range s.goals {
		if g.UserID != userID || g.Status != models.GoalStatusActive {
			continue
		}
		if len(want) > 0 && !want[g.ID] {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memEntryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*models.ProgressEntry
	seq     int
}

func newMemEntryStore() *memEntryStore {
	return &memEntryStore{entries: make(map[uuid.UUID]*models.ProgressEntry)}
}

func (s *memEntryStore) Create(_ context.Context, e *models.ProgressEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e.CreatedAt = testEpoch.Add(time.Duration(s.seq) * time.Second)
	e.UpdatedAt = e.CreatedAt
	cp := *e
	s.entries[e.ID] = &cp
	return nil
}

func (s *memEntryStore) GetByID(_ context.Context, goalID, id uuid.UUID) (*models.ProgressEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.GoalID != goalID {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memEntryStore) ListByGoalID(_ context.Context, goalID uuid.UUID) ([]*models.ProgressEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ProgressEntry
	for _, e := range s.entries {
		if e.GoalID == goalID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memEntryStore) CountByGoalID(ctx context.Context, goalID uuid.UUID) (int, error) {
	entries, err := s.ListByGoalID(ctx, goalID)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *memEntryStore) Update(_ context.Context, e *models.ProgressEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[e.ID]
	if !ok || cur.GoalID != e.GoalID {
		return ErrEntryNotFound
	}
	e.UpdatedAt = cur.UpdatedAt.Add(time.Second)
	cp := *e
	s.entries[e.ID] = &cp
	return nil
}

func (s *memEntryStore) Delete(_ context.Context, goalID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.GoalID != goalID {
		return ErrEntryNotFound
	}
	delete(s.entries, id)
	return nil
}

type recordingTrigger struct {
	mu    sync.Mutex
	goals []uuid.UUID
}

func (r *recordingTrigger) Trigger(_ context.Context, g *models.Goal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goals = append(r.goals, g.ID)
}

func (r *recordingTrigger) calls() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.goals...)
}
