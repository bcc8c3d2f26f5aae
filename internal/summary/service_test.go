package summary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/strideapp/stride/internal/goal"
	"github.com/strideapp/stride/internal/models"
	"github.com/strideapp/stride/internal/queue"
	"github.com/strideapp/stride/internal/ratelimit"
	"github.com/strideapp/stride/internal/services/ai"
)

type fakeGoalStore struct {
	mu    sync.Mutex
	goals map[uuid.UUID]*models.Goal
}

func newFakeGoalStore() *fakeGoalStore {
	return &fakeGoalStore{goals: make(map[uuid.UUID]*models.Goal)}
}

func (s *fakeGoalStore) put(g *models.Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	s.goals[g.ID] = &cp
}

func (s *fakeGoalStore) GetByID(_ context.Context, userID, id uuid.UUID) (*models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok || g.UserID != userID {
		return nil, goal.ErrGoalNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *fakeGoalStore) ListByParentID(_ context.Context, userID, parentID uuid.UUID) ([]*models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Goal
	for _, g := range s.goals {
		if g.UserID == userID && g.ParentGoalID != nil && *g.ParentGoalID == parentID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeGoalStore) Create(_ context.Context, g *models.Goal) error {
	s.put(g)
	return nil
}

func (s *fakeGoalStore) Update(_ context.Context, g *models.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; !ok {
		return goal.ErrGoalNotFound
	}
	cp := *g
	s.goals[g.ID] = &cp
	return nil
}

func (s *fakeGoalStore) UpdateStatus(_ context.Context, g *models.Goal, expect models.GoalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.goals[g.ID]
	if !ok {
		return goal.ErrGoalNotFound
	}
	if cur.Status != expect {
		return goal.ErrGoalNotActive
	}
	cp := *g
	s.goals[g.ID] = &cp
	return nil
}

func (s *fakeGoalStore) Delete(_ context.Context, _, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.goals, id)
	return nil
}

func (s *fakeGoalStore) ListByUserID(_ context.Context, _ uuid.UUID, _ *models.GoalStatus, _, _ int) ([]*models.Goal, int, error) {
	return nil, 0, nil
}

func (s *fakeGoalStore) ListActiveByUserID(_ context.Context, _ uuid.UUID, _ []uuid.UUID, _ int) ([]*models.Goal, error) {
	return nil, nil
}

type fakeEntryStore struct {
	entries map[uuid.UUID][]*models.ProgressEntry
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{entries: make(map[uuid.UUID][]*models.ProgressEntry)}
}

func (s *fakeEntryStore) seed(goalID uuid.UUID, values ...string) {
	for _, v := range values {
		s.entries[goalID] = append(s.entries[goalID], &models.ProgressEntry{
			ID:        uuid.New(),
			GoalID:    goalID,
			Value:     decimal.RequireFromString(v),
			CreatedAt: time.Now(),
		})
	}
}

func (s *fakeEntryStore) Create(_ context.Context, e *models.ProgressEntry) error {
	s.entries[e.GoalID] = append(s.entries[e.GoalID], e)
	return nil
}

func (s *fakeEntryStore) GetByID(_ context.Context, goalID, id uuid.UUID) (*models.ProgressEntry, error) {
	for _, e := range s.entries[goalID] {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, goal.ErrEntryNotFound
}

func (s *fakeEntryStore) ListByGoalID(_ context.Context, goalID uuid.UUID) ([]*models.ProgressEntry, error) {
	return s.entries[goalID], nil
}

func (s *fakeEntryStore) CountByGoalID(_ context.Context, goalID uuid.UUID) (int, error) {
	return len(s.entries[goalID]), nil
}

func (s *fakeEntryStore) Update(_ context.Context, _ *models.ProgressEntry) error { return nil }

func (s *fakeEntryStore) Delete(_ context.Context, _, _ uuid.UUID) error { return nil }

type fakeProvider struct {
	mu       sync.Mutex
	response string
	err      error
	requests []*ai.RetrospectiveRequest
}

func (p *fakeProvider) GenerateRetrospective(_ context.Context, req *ai.RetrospectiveRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}

type fakeLimiter struct {
	allowed bool
	err     error
}

func (l *fakeLimiter) CheckAndConsume(_ context.Context, _ string) (ratelimit.Result, error) {
	if l.err != nil {
		return ratelimit.Result{}, l.err
	}
	return ratelimit.Result{Allowed: l.allowed, ResetAt: time.Now().Add(time.Minute)}, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Consume(_ context.Context, _ int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) HealthCheck(_ context.Context) error { return nil }

func finishedGoal(userID uuid.UUID, status models.GoalStatus) *models.Goal {
	return &models.Goal{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        "write 30 pages",
		TargetValue: decimal.RequireFromString("30"),
		Deadline:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Status:      status,
		CreatedAt:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()

	goals := newFakeGoalStore()
	entries := newFakeEntryStore()
	provider := &fakeProvider{response: "You nearly made it."}
	svc := New(goals, entries, provider, nil, nil, nil)

	g := finishedGoal(userID, models.GoalStatusCompletedFailure)
	goals.put(g)
	entries.seed(g.ID, "10", "8", "7")

	updated, err := svc.Generate(ctx, userID, g.ID, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if updated.AISummary == nil || *updated.AISummary != "You nearly made it." {
		t.Errorf("AISummary = %v", updated.AISummary)
	}
	if updated.AIGenerationAttempts != 1 {
		t.Errorf("AIGenerationAttempts = %d, want 1", updated.AIGenerationAttempts)
	}

	req := provider.requests[0]
	if !req.FinalValue.Equal(decimal.RequireFromString("25")) {
		t.Errorf("FinalValue = %s, want 25", req.FinalValue)
	}
	if len(req.Entries) != 3 {
		t.Errorf("request entries = %d, want 3", len(req.Entries))
	}

	// A second call without force refuses: the summary exists.
	if _, err := svc.Generate(ctx, userID, g.ID, false); !errors.Is(err, goal.ErrSummaryExists) {
		t.Errorf("regenerate without force = %v, want ErrSummaryExists", err)
	}

	// With force it regenerates and counts another attempt.
	provider.response = "Second take."
	again, err := svc.Generate(ctx, userID, g.ID, true)
	if err != nil {
		t.Fatalf("Generate force: %v", err)
	}
	if *again.AISummary != "Second take." || again.AIGenerationAttempts != 2 {
		t.Errorf("force regenerate = (%q, %d attempts)", *again.AISummary, again.AIGenerationAttempts)
	}
}

func TestGenerate_Preconditions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()

	goals := newFakeGoalStore()
	entries := newFakeEntryStore()
	svc := New(goals, entries, &fakeProvider{response: "x"}, nil, nil, nil)

	active := finishedGoal(userID, models.GoalStatusActive)
	goals.put(active)
	if _, err := svc.Generate(ctx, userID, active.ID, false); !errors.Is(err, goal.ErrGoalStillActive) {
		t.Errorf("active goal = %v, want ErrGoalStillActive", err)
	}

	sparse := finishedGoal(userID, models.GoalStatusAbandoned)
	goals.put(sparse)
	entries.seed(sparse.ID, "1", "2")
	if _, err := svc.Generate(ctx, userID, sparse.ID, false); !errors.Is(err, goal.ErrNotEnoughEntries) {
		t.Errorf("two entries = %v, want ErrNotEnoughEntries", err)
	}

	if _, err := svc.Generate(ctx, userID, uuid.New(), false); !goal.IsCode(err, goal.CodeNotFound) {
		t.Errorf("unknown goal code = %s, want not_found", goal.CodeOf(err))
	}
}

func TestGenerate_NoProviderConfigured(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()

	goals := newFakeGoalStore()
	entries := newFakeEntryStore()
	svc := New(goals, entries, nil, nil, nil, nil)

	g := finishedGoal(userID, models.GoalStatusCompletedFailure)
	goals.put(g)
	entries.seed(g.ID, "10", "8", "7")

	_, err := svc.Generate(ctx, userID, g.ID, false)
	if !errors.Is(err, goal.ErrSummaryNotConfigured) {
		t.Fatalf("Generate without provider = %v, want ErrSummaryNotConfigured", err)
	}
	if !goal.IsCode(err, goal.CodePreconditionFailed) {
		t.Errorf("code = %s, want precondition_failed", goal.CodeOf(err))
	}

	stored, _ := goals.GetByID(ctx, userID, g.ID)
	if stored.AIGenerationAttempts != 0 {
		t.Errorf("AIGenerationAttempts = %d, want 0 when generation never starts", stored.AIGenerationAttempts)
	}

	// Trigger on the inline path must swallow the refusal, not panic:
	// completion has already been committed by the time it runs.
	svc.Trigger(ctx, g)
	if stored, _ := goals.GetByID(ctx, userID, g.ID); stored.AISummary != nil {
		t.Errorf("summary = %v, want none without a provider", stored.AISummary)
	}
}

func TestGenerate_ProviderFailureCountsAttempt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()

	goals := newFakeGoalStore()
	entries := newFakeEntryStore()
	provider := &fakeProvider{err: errors.New("upstream down")}
	svc := New(goals, entries, provider, nil, nil, nil)

	g := finishedGoal(userID, models.GoalStatusCompletedSuccess)
	goals.put(g)
	entries.seed(g.ID, "10", "10", "10")

	_, err := svc.Generate(ctx, userID, g.ID, false)
	if !goal.IsCode(err, goal.CodeExternalService) {
		t.Fatalf("provider failure code = %s, want external_service_failure", goal.CodeOf(err))
	}

	stored, _ := goals.GetByID(ctx, userID, g.ID)
	if stored.AIGenerationAttempts != 1 {
		t.Errorf("AIGenerationAttempts = %d, want 1 after failed attempt", stored.AIGenerationAttempts)
	}
	if stored.AISummary != nil {
		t.Error("failed generation must not store a summary")
	}
}

func TestGenerate_RateLimiter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()

	goals := newFakeGoalStore()
	entries := newFakeEntryStore()

	g := finishedGoal(userID, models.GoalStatusCompletedFailure)
	goals.put(g)
	entries.seed(g.ID, "1", "2", "3")

	// Denied by the limiter.
	denied := New(goals, entries, &fakeProvider{response: "x"}, &fakeLimiter{allowed: false}, nil, nil)
	if _, err := denied.Generate(ctx, userID, g.ID, false); !goal.IsCode(err, goal.CodeRateLimited) {
		t.Errorf("denied code = %s, want rate_limited", goal.CodeOf(err))
	}

	// Limiter outage fails open.
	failOpen := New(goals, entries, &fakeProvider{response: "open"}, &fakeLimiter{err: errors.New("redis down")}, nil, nil)
	updated, err := failOpen.Generate(ctx, userID, g.ID, false)
	if err != nil {
		t.Fatalf("fail-open Generate: %v", err)
	}
	if updated.AISummary == nil || *updated.AISummary != "open" {
		t.Errorf("fail-open summary = %v", updated.AISummary)
	}
}

func TestGenerate_IncludesPriorChainGoals(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()

	goals := newFakeGoalStore()
	entries := newFakeEntryStore()
	provider := &fakeProvider{response: "ok"}
	svc := New(goals, entries, provider, nil, nil, nil)

	root := finishedGoal(userID, models.GoalStatusCompletedFailure)
	root.Name = "first try"
	goals.put(root)
	entries.seed(root.ID, "5")

	child := finishedGoal(userID, models.GoalStatusAbandoned)
	child.ParentGoalID = &root.ID
	child.CreatedAt = root.CreatedAt.Add(time.Hour)
	goals.put(child)
	entries.seed(child.ID, "1", "2", "3")

	if _, err := svc.Generate(ctx, userID, child.ID, false); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	req := provider.requests[0]
	if len(req.PriorGoals) != 1 {
		t.Fatalf("PriorGoals = %d, want 1", len(req.PriorGoals))
	}
	prior := req.PriorGoals[0]
	if prior.Name != "first try" || !prior.FinalValue.Equal(decimal.RequireFromString("5")) {
		t.Errorf("prior goal = %+v", prior)
	}
}

func TestUpdateSummary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()

	goals := newFakeGoalStore()
	svc := New(goals, newFakeEntryStore(), &fakeProvider{}, nil, nil, nil)

	g := finishedGoal(userID, models.GoalStatusAbandoned)
	goals.put(g)

	if _, err := svc.UpdateSummary(ctx, userID, g.ID, "   "); !goal.IsCode(err, goal.CodeValidationFailed) {
		t.Errorf("blank text code = %s, want validation_failed", goal.CodeOf(err))
	}

	updated, err := svc.UpdateSummary(ctx, userID, g.ID, "  my own words  ")
	if err != nil {
		t.Fatalf("UpdateSummary: %v", err)
	}
	if updated.AISummary == nil || *updated.AISummary != "my own words" {
		t.Errorf("AISummary = %v, want trimmed text", updated.AISummary)
	}

	active := finishedGoal(userID, models.GoalStatusActive)
	goals.put(active)
	if _, err := svc.UpdateSummary(ctx, userID, active.ID, "text"); !errors.Is(err, goal.ErrGoalStillActive) {
		t.Errorf("active goal = %v, want ErrGoalStillActive", err)
	}
}

func TestTrigger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()

	goals := newFakeGoalStore()
	entries := newFakeEntryStore()
	jobs := &fakeQueue{}
	svc := New(goals, entries, &fakeProvider{response: "x"}, nil, jobs, nil)

	g := finishedGoal(userID, models.GoalStatusCompletedFailure)
	goals.put(g)

	svc.Trigger(ctx, g)
	if len(jobs.jobs) != 1 {
		t.Fatalf("enqueued jobs = %d, want 1", len(jobs.jobs))
	}
	job := jobs.jobs[0]
	if job.Type != queue.JobTypeSummaryGeneration || job.GoalID == nil || *job.GoalID != g.ID {
		t.Errorf("job = %+v", job)
	}

	// Active goals and goals with summaries are skipped.
	svc.Trigger(ctx, finishedGoal(userID, models.GoalStatusActive))
	summarized := finishedGoal(userID, models.GoalStatusAbandoned)
	text := "done"
	summarized.AISummary = &text
	svc.Trigger(ctx, summarized)
	if len(jobs.jobs) != 1 {
		t.Errorf("enqueued jobs = %d after skips, want still 1", len(jobs.jobs))
	}

	// Enqueue failures are swallowed.
	jobs.err = errors.New("broker gone")
	svc.Trigger(ctx, finishedGoal(userID, models.GoalStatusCompletedFailure))
}

func TestTrigger_InlineWithoutQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()

	goals := newFakeGoalStore()
	entries := newFakeEntryStore()
	provider := &fakeProvider{response: "inline summary"}
	svc := New(goals, entries, provider, nil, nil, nil)

	g := finishedGoal(userID, models.GoalStatusCompletedFailure)
	goals.put(g)
	entries.seed(g.ID, "1", "2", "3")

	svc.Trigger(ctx, g)

	stored, _ := goals.GetByID(ctx, userID, g.ID)
	if stored.AISummary == nil || *stored.AISummary != "inline summary" {
		t.Errorf("inline trigger summary = %v", stored.AISummary)
	}

	// Inline generation failures never escape Trigger.
	sparse := finishedGoal(userID, models.GoalStatusAbandoned)
	goals.put(sparse)
	svc.Trigger(ctx, sparse)
}
