package summary

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strideapp/stride/internal/goal"
	"github.com/strideapp/stride/internal/models"
	"github.com/strideapp/stride/internal/queue"
	"github.com/strideapp/stride/internal/ratelimit"
	"github.com/strideapp/stride/internal/services/ai"
)

const (
	// MinEntriesForSummary is the minimum progress history a goal needs
	// before a retrospective is worth generating
	MinEntriesForSummary = 3
	// MaxPriorGoals caps how many earlier chain iterations go into the prompt
	MaxPriorGoals = 3
	// MaxSummaryLength caps user-edited summary text
	MaxSummaryLength = 2000
	// inlineGenerateTimeout bounds background generation when no queue is
	// configured and Trigger runs the provider call inline
	inlineGenerateTimeout = 2 * time.Minute
)

// Service generates and edits retrospective summaries for finished goals.
// Generation is the one best-effort path in the system: Trigger swallows
// every failure after logging it, because a missing summary must never block
// a lifecycle transition.
type Service struct {
	goals    goal.GoalStore
	entries  goal.EntryStore
	provider ai.SummaryProvider
	limiter  ratelimit.Limiter
	jobs     queue.JobQueue
	logger   *zap.Logger
}

// New creates a summary service. provider, limiter and jobs are all
// optional: a nil provider makes Generate refuse with a precondition error,
// a nil limiter disables throttling, and a nil queue makes Trigger generate
// inline instead of enqueueing.
func New(goals goal.GoalStore, entries goal.EntryStore, provider ai.SummaryProvider, limiter ratelimit.Limiter, jobs queue.JobQueue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		goals:    goals,
		entries:  entries,
		provider: provider,
		limiter:  limiter,
		jobs:     jobs,
		logger:   logger,
	}
}

// Generate produces and stores a retrospective for a finished goal. With
// force set an existing summary is regenerated instead of refused.
func (s *Service) Generate(ctx context.Context, userID, goalID uuid.UUID, force bool) (*models.Goal, error) {
	// The server runs without a provider when no API key is configured;
	// refuse up front instead of dereferencing a nil interface later.
	if s.provider == nil {
		return nil, goal.Precondition(goal.ErrSummaryNotConfigured)
	}

	g, err := s.goals.GetByID(ctx, userID, goalID)
	if err != nil {
		if errors.Is(err, goal.ErrGoalNotFound) {
			return nil, goal.NotFound(goal.ErrGoalNotFound)
		}
		return nil, goal.Storage("get goal", err)
	}

	if g.Status == models.GoalStatusActive {
		return nil, goal.InvalidState(goal.ErrGoalStillActive)
	}
	if g.AISummary != nil && !force {
		return nil, goal.Precondition(goal.ErrSummaryExists)
	}

	entries, err := s.entries.ListByGoalID(ctx, g.ID)
	if err != nil {
		return nil, goal.Storage("list progress entries", err)
	}
	if len(entries) < MinEntriesForSummary {
		return nil, goal.Precondition(goal.ErrNotEnoughEntries)
	}

	if s.limiter != nil {
		res, limErr := s.limiter.CheckAndConsume(ctx, "summary:"+userID.String())
		switch {
		case limErr != nil:
			// Limiter store outage fails open: generation proceeds.
			s.logger.Warn("summary_limiter_unavailable",
				zap.String("user_id", userID.String()),
				zap.Error(limErr),
			)
		case !res.Allowed:
			return nil, goal.RateLimited("summary generation rate limit reached, retry after " +
				res.ResetAt.UTC().Format(time.RFC3339))
		}
	}

	req, err := s.buildRequest(ctx, g, entries)
	if err != nil {
		return nil, err
	}

	// Every attempt counts, successful or not, so repeated provider
	// failures stay visible.
	g.AIGenerationAttempts++

	text, genErr := s.provider.GenerateRetrospective(ctx, req)
	if genErr != nil {
		if updErr := s.goals.Update(ctx, g); updErr != nil {
			s.logger.Warn("summary_attempt_count_not_persisted",
				zap.String("goal_id", g.ID.String()),
				zap.Error(updErr),
			)
		}
		return nil, goal.External(genErr)
	}

	g.AISummary = &text
	if err := s.goals.Update(ctx, g); err != nil {
		return nil, goal.Storage("store summary", err)
	}

	return g, nil
}

// UpdateSummary replaces the stored summary with user-edited text.
func (s *Service) UpdateSummary(ctx context.Context, userID, goalID uuid.UUID, text string) (*models.Goal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, goal.Validation("summary text is required")
	}
	if len(text) > MaxSummaryLength {
		return nil, goal.Validation("summary exceeds %d characters", MaxSummaryLength)
	}

	g, err := s.goals.GetByID(ctx, userID, goalID)
	if err != nil {
		if errors.Is(err, goal.ErrGoalNotFound) {
			return nil, goal.NotFound(goal.ErrGoalNotFound)
		}
		return nil, goal.Storage("get goal", err)
	}
	if g.Status == models.GoalStatusActive {
		return nil, goal.InvalidState(goal.ErrGoalStillActive)
	}

	g.AISummary = &text
	if err := s.goals.Update(ctx, g); err != nil {
		return nil, goal.Storage("store summary", err)
	}

	return g, nil
}

// Trigger implements goal.SummaryTrigger. It never returns or propagates an
// error: failures are logged and dropped.
func (s *Service) Trigger(ctx context.Context, g *models.Goal) {
	if g == nil || g.Status == models.GoalStatusActive {
		return
	}
	if g.AISummary != nil {
		return
	}

	if s.jobs != nil {
		goalID := g.ID
		job := queue.NewJob(queue.JobTypeSummaryGeneration, g.UserID, &goalID)
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			s.logger.Warn("summary_job_enqueue_failed",
				zap.String("goal_id", g.ID.String()),
				zap.Error(err),
			)
		}
		return
	}

	// No queue configured: generate inline on a detached context so the
	// caller's request deadline does not cancel the provider call.
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), inlineGenerateTimeout)
	defer cancel()
	if _, err := s.Generate(genCtx, g.UserID, g.ID, false); err != nil {
		s.logger.Warn("summary_generation_skipped",
			zap.String("goal_id", g.ID.String()),
			zap.String("reason", err.Error()),
		)
	}
}

// buildRequest assembles the provider request from the goal, its history and
// up to MaxPriorGoals earlier chain iterations.
func (s *Service) buildRequest(ctx context.Context, g *models.Goal, entries []*models.ProgressEntry) (*ai.RetrospectiveRequest, error) {
	req := &ai.RetrospectiveRequest{
		GoalName:          g.Name,
		Outcome:           g.Status,
		TargetValue:       g.TargetValue,
		Deadline:          g.Deadline,
		CreatedAt:         g.CreatedAt,
		AbandonmentReason: g.AbandonmentReason,
		ReflectionNotes:   g.ReflectionNotes,
	}

	for _, e := range entries {
		req.FinalValue = req.FinalValue.Add(e.Value)
		req.Entries = append(req.Entries, ai.RetrospectiveEntry{
			Value:      e.Value,
			Notes:      e.Notes,
			RecordedAt: e.CreatedAt,
		})
	}

	chain, err := goal.ResolveChain(ctx, s.goals, g)
	if err != nil {
		return nil, err
	}
	var priors []ai.PriorGoal
	for _, member := range chain {
		if member.ID == g.ID {
			break
		}
		memberEntries, err := s.entries.ListByGoalID(ctx, member.ID)
		if err != nil {
			return nil, goal.Storage("list prior goal entries", err)
		}
		prior := ai.PriorGoal{
			Name:        member.Name,
			Outcome:     member.Status,
			TargetValue: member.TargetValue,
		}
		for _, e := range memberEntries {
			prior.FinalValue = prior.FinalValue.Add(e.Value)
		}
		priors = append(priors, prior)
	}
	if len(priors) > MaxPriorGoals {
		priors = priors[len(priors)-MaxPriorGoals:]
	}
	req.PriorGoals = priors

	return req, nil
}
