package goal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/strideapp/stride/internal/models"
)

const (
	// MaxGoalNameLength is the maximum length for a goal name
	MaxGoalNameLength = 255
	// MaxNotesLength is the maximum length for free-text notes fields
	MaxNotesLength = 2000
	// MaxAbandonReasonLength is the maximum length for an abandonment reason
	MaxAbandonReasonLength = 1000
	// MaxSyncBatchSize bounds how many active goals one sync pass examines
	MaxSyncBatchSize = 100
)

// GoalStore is the persistence surface for goals. All lookups are scoped by
// owner; a goal that exists but belongs to another user is not found.
type GoalStore interface {
	ChainStore
	Create(ctx context.Context, g *models.Goal) error
	Update(ctx context.Context, g *models.Goal) error
	// UpdateStatus persists status, abandonment reason and updated_at in one
	// write, guarded by the expected current status. Returns ErrGoalNotActive
	// when the row moved out of expect concurrently.
	UpdateStatus(ctx context.Context, g *models.Goal, expect models.GoalStatus) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	ListByUserID(ctx context.Context, userID uuid.UUID, status *models.GoalStatus, page, pageSize int) ([]*models.Goal, int, error)
	ListActiveByUserID(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, limit int) ([]*models.Goal, error)
}

// EntryStore is the persistence surface for progress entries.
type EntryStore interface {
	Create(ctx context.Context, e *models.ProgressEntry) error
	GetByID(ctx context.Context, goalID, id uuid.UUID) (*models.ProgressEntry, error)
	ListByGoalID(ctx context.Context, goalID uuid.UUID) ([]*models.ProgressEntry, error)
	CountByGoalID(ctx context.Context, goalID uuid.UUID) (int, error)
	Update(ctx context.Context, e *models.ProgressEntry) error
	Delete(ctx context.Context, goalID, id uuid.UUID) error
}

// SummaryTrigger kicks off best-effort retrospective generation after a goal
// reaches a terminal state. Implementations must never panic; errors are
// theirs to log and swallow.
type SummaryTrigger interface {
	Trigger(ctx context.Context, g *models.Goal)
}

// Service orchestrates the goal lifecycle: creation, edits, progress
// recording, explicit transitions (abandon/complete/retry/continue) and the
// batch status sync pass.
type Service struct {
	goals   GoalStore
	entries EntryStore
	trigger SummaryTrigger // optional
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a lifecycle service. trigger may be nil, in which case
// terminal transitions simply skip summary generation.
func NewService(goals GoalStore, entries EntryStore, trigger SummaryTrigger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		goals:   goals,
		entries: entries,
		trigger: trigger,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock injects a fixed clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateGoalParams carries validated-at-the-edge goal creation input.
type CreateGoalParams struct {
	Name         string
	TargetValue  decimal.Decimal
	Deadline     time.Time
	ParentGoalID *uuid.UUID
}

// GoalDetail pairs a goal with its live progress rollup.
type GoalDetail struct {
	Goal   *models.Goal `json:"goal"`
	Rollup Rollup       `json:"progress"`
}

// CreateGoal creates a root goal, or a chained iteration when ParentGoalID
// is supplied (same chain validation as retry/continue).
func (s *Service) CreateGoal(ctx context.Context, userID uuid.UUID, params CreateGoalParams) (*models.Goal, error) {
	name := strings.TrimSpace(params.Name)
	if err := validateGoalFields(name, params.TargetValue, params.Deadline); err != nil {
		return nil, err
	}

	if params.ParentGoalID != nil {
		parent, err := s.loadGoal(ctx, userID, *params.ParentGoalID)
		if err != nil {
			return nil, err
		}
		if err := ValidateForNewIteration(ctx, s.goals, parent); err != nil {
			return nil, err
		}
	}

	g := &models.Goal{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         name,
		TargetValue:  params.TargetValue,
		Deadline:     DateOnly(params.Deadline),
		Status:       models.GoalStatusActive,
		ParentGoalID: params.ParentGoalID,
	}
	if err := s.goals.Create(ctx, g); err != nil {
		return nil, Storage("create goal", err)
	}
	s.logger.Info("goal_created",
		zap.String("goal_id", g.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Bool("chained", g.ParentGoalID != nil),
	)
	return g, nil
}

// GetGoal returns a goal with its live rollup.
func (s *Service) GetGoal(ctx context.Context, userID, goalID uuid.UUID) (*GoalDetail, error) {
	g, err := s.loadGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	rollup, err := s.rollup(ctx, g)
	if err != nil {
		return nil, err
	}
	return &GoalDetail{Goal: g, Rollup: rollup}, nil
}

// ListGoals returns the user's goals, optionally filtered by status, newest
// first, paginated.
func (s *Service) ListGoals(ctx context.Context, userID uuid.UUID, status *models.GoalStatus, page, pageSize int) ([]*models.Goal, int, error) {
	goals, total, err := s.goals.ListByUserID(ctx, userID, status, page, pageSize)
	if err != nil {
		return nil, 0, Storage("list goals", err)
	}
	return goals, total, nil
}

// UpdateGoalParams carries partial goal edits. Nil fields are untouched.
type UpdateGoalParams struct {
	Name            *string
	TargetValue     *decimal.Decimal
	Deadline        *time.Time
	ReflectionNotes *string
}

// UpdateGoal applies user edits. Once any progress entry exists the goal is
// locked: name, target value and deadline are immutable, only reflection
// notes (and, through the summary service, the AI summary) stay editable.
func (s *Service) UpdateGoal(ctx context.Context, userID, goalID uuid.UUID, params UpdateGoalParams) (*models.Goal, error) {
	g, err := s.loadGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}

	wantsLockedField := params.Name != nil || params.TargetValue != nil || params.Deadline != nil
	if wantsLockedField {
		count, err := s.entries.CountByGoalID(ctx, g.ID)
		if err != nil {
			return nil, Storage("count progress entries", err)
		}
		if count >= 1 {
			return nil, Conflict(ErrGoalLocked)
		}
	}

	if params.Name != nil {
		g.Name = strings.TrimSpace(*params.Name)
	}
	if params.TargetValue != nil {
		g.TargetValue = *params.TargetValue
	}
	if params.Deadline != nil {
		g.Deadline = DateOnly(*params.Deadline)
	}
	if wantsLockedField {
		if err := validateGoalFields(g.Name, g.TargetValue, g.Deadline); err != nil {
			return nil, err
		}
	}
	if params.ReflectionNotes != nil {
		notes := strings.TrimSpace(*params.ReflectionNotes)
		if len(notes) > MaxNotesLength {
			return nil, Validation("reflection notes exceed %d characters", MaxNotesLength)
		}
		if notes == "" {
			g.ReflectionNotes = nil
		} else {
			g.ReflectionNotes = &notes
		}
	}

	if err := s.goals.Update(ctx, g); err != nil {
		if errors.Is(err, ErrGoalNotFound) {
			return nil, NotFound(ErrGoalNotFound)
		}
		return nil, Storage("update goal", err)
	}
	return g, nil
}

// DeleteGoal removes a goal. Deletion is refused once progress entries
// exist; history is never destroyed.
func (s *Service) DeleteGoal(ctx context.Context, userID, goalID uuid.UUID) error {
	g, err := s.loadGoal(ctx, userID, goalID)
	if err != nil {
		return err
	}
	count, err := s.entries.CountByGoalID(ctx, g.ID)
	if err != nil {
		return Storage("count progress entries", err)
	}
	if count >= 1 {
		return Conflict(ErrGoalHasEntries)
	}
	if err := s.goals.Delete(ctx, userID, goalID); err != nil {
		if errors.Is(err, ErrGoalNotFound) {
			return NotFound(ErrGoalNotFound)
		}
		return Storage("delete goal", err)
	}
	return nil
}

// ProgressParams carries progress entry input.
type ProgressParams struct {
	Value decimal.Decimal
	Notes *string
}

// AddProgress records an entry against an active goal. Recording the first
// entry locks the goal's name, target and deadline.
func (s *Service) AddProgress(ctx context.Context, userID, goalID uuid.UUID, params ProgressParams) (*models.ProgressEntry, error) {
	g, err := s.requireActiveGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	if err := validateProgressFields(params); err != nil {
		return nil, err
	}

	e := &models.ProgressEntry{
		ID:     uuid.New(),
		GoalID: g.ID,
		Value:  params.Value,
		Notes:  normalizeNotes(params.Notes),
	}
	if err := s.entries.Create(ctx, e); err != nil {
		return nil, Storage("create progress entry", err)
	}
	return e, nil
}

// UpdateProgress edits an entry while the owning goal is still active.
func (s *Service) UpdateProgress(ctx context.Context, userID, goalID, entryID uuid.UUID, params ProgressParams) (*models.ProgressEntry, error) {
	g, err := s.requireActiveGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	if err := validateProgressFields(params); err != nil {
		return nil, err
	}

	e, err := s.entries.GetByID(ctx, g.ID, entryID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, NotFound(ErrEntryNotFound)
		}
		return nil, Storage("get progress entry", err)
	}
	e.Value = params.Value
	e.Notes = normalizeNotes(params.Notes)
	if err := s.entries.Update(ctx, e); err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, NotFound(ErrEntryNotFound)
		}
		return nil, Storage("update progress entry", err)
	}
	return e, nil
}

// DeleteProgress removes an entry while the owning goal is still active.
func (s *Service) DeleteProgress(ctx context.Context, userID, goalID, entryID uuid.UUID) error {
	g, err := s.requireActiveGoal(ctx, userID, goalID)
	if err != nil {
		return err
	}
	if err := s.entries.Delete(ctx, g.ID, entryID); err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return NotFound(ErrEntryNotFound)
		}
		return Storage("delete progress entry", err)
	}
	return nil
}

// ListProgress returns all entries for a goal, regardless of status:
// entries on terminal goals stay visible for history.
func (s *Service) ListProgress(ctx context.Context, userID, goalID uuid.UUID) ([]*models.ProgressEntry, error) {
	g, err := s.loadGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	entries, err := s.entries.ListByGoalID(ctx, g.ID)
	if err != nil {
		return nil, Storage("list progress entries", err)
	}
	return entries, nil
}

// Abandon marks an active goal as abandoned with a required reason.
// Abandoned goals are never automatically transitioned again.
func (s *Service) Abandon(ctx context.Context, userID, goalID uuid.UUID, reason string) (*models.Goal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, Validation("abandonment reason is required")
	}
	if len(reason) > MaxAbandonReasonLength {
		return nil, Validation("abandonment reason exceeds %d characters", MaxAbandonReasonLength)
	}

	g, err := s.requireActiveGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	g.Status = models.GoalStatusAbandoned
	g.AbandonmentReason = &reason
	if err := s.updateStatusGuarded(ctx, g); err != nil {
		return nil, err
	}
	s.logger.Info("goal_abandoned",
		zap.String("goal_id", g.ID.String()),
		zap.String("user_id", userID.String()),
	)
	return g, nil
}

// Complete marks an active goal as successfully completed. The live
// aggregate must have reached the target; equality is sufficient. Success is
// only ever applied here, never by the sync pass.
func (s *Service) Complete(ctx context.Context, userID, goalID uuid.UUID) (*models.Goal, error) {
	g, err := s.requireActiveGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}

	rollup, err := s.rollup(ctx, g)
	if err != nil {
		return nil, err
	}
	if rollup.CurrentValue.LessThan(g.TargetValue) {
		return nil, Precondition(ErrTargetNotReached)
	}

	g.Status = models.GoalStatusCompletedSuccess
	if err := s.updateStatusGuarded(ctx, g); err != nil {
		return nil, err
	}
	s.logger.Info("goal_completed",
		zap.String("goal_id", g.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("current_value", rollup.CurrentValue.String()),
	)

	// Best effort: completion already succeeded, summary failures never
	// propagate.
	if s.trigger != nil {
		s.trigger.Trigger(ctx, g)
	}
	return g, nil
}

// IterationParams carries retry/continue input. Name is optional for retry
// (defaults to the source goal's name) and required for continue.
type IterationParams struct {
	Name        string
	TargetValue decimal.Decimal
	Deadline    time.Time
}

// Retry spawns a new active iteration from a failed or abandoned goal.
func (s *Service) Retry(ctx context.Context, userID, goalID uuid.UUID, params IterationParams) (*models.Goal, error) {
	source, err := s.loadGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	if source.Status != models.GoalStatusCompletedFailure && source.Status != models.GoalStatusAbandoned {
		return nil, InvalidState(ErrGoalNotRetryable)
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = source.Name
	}
	return s.createIteration(ctx, source, name, params, "goal_retried")
}

// Continue spawns a new active iteration from a successfully completed goal.
// Unlike retry, the new name is required: a continuation is a new objective,
// not another attempt at the old one.
func (s *Service) Continue(ctx context.Context, userID, goalID uuid.UUID, params IterationParams) (*models.Goal, error) {
	source, err := s.loadGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	if source.Status != models.GoalStatusCompletedSuccess {
		return nil, InvalidState(ErrGoalNotContinuable)
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, Validation("name is required to continue a goal")
	}
	return s.createIteration(ctx, source, name, params, "goal_continued")
}

func (s *Service) createIteration(ctx context.Context, source *models.Goal, name string, params IterationParams, event string) (*models.Goal, error) {
	if err := validateGoalFields(name, params.TargetValue, params.Deadline); err != nil {
		return nil, err
	}
	if err := ValidateForNewIteration(ctx, s.goals, source); err != nil {
		return nil, err
	}

	parentID := source.ID
	g := &models.Goal{
		ID:           uuid.New(),
		UserID:       source.UserID,
		Name:         name,
		TargetValue:  params.TargetValue,
		Deadline:     DateOnly(params.Deadline),
		Status:       models.GoalStatusActive,
		ParentGoalID: &parentID,
	}
	if err := s.goals.Create(ctx, g); err != nil {
		return nil, Storage("create iteration", err)
	}
	s.logger.Info(event,
		zap.String("source_goal_id", source.ID.String()),
		zap.String("goal_id", g.ID.String()),
		zap.String("user_id", source.UserID.String()),
	)
	return g, nil
}

// StatusChange records one transition applied by a sync pass.
type StatusChange struct {
	GoalID uuid.UUID         `json:"goal_id"`
	From   models.GoalStatus `json:"from"`
	To     models.GoalStatus `json:"to"`
}

// SyncResult reports the outcome of one sync pass.
type SyncResult struct {
	Checked int            `json:"checked"`
	Updated []StatusChange `json:"updated"`
}

// SyncStatuses applies automatic status transitions to the caller's active
// goals, optionally filtered to the given ids, bounded to MaxSyncBatchSize.
// Only goals whose resolved status differs are written, which makes the pass
// idempotent: an immediate re-run with no data changes reports zero updates.
// Goals newly failed by this pass get a best-effort summary trigger
// afterwards, sequentially, to bound load on the generation collaborator.
func (s *Service) SyncStatuses(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (*SyncResult, error) {
	active, err := s.goals.ListActiveByUserID(ctx, userID, ids, MaxSyncBatchSize)
	if err != nil {
		return nil, Storage("list active goals", err)
	}

	now := s.now()
	result := &SyncResult{Checked: len(active), Updated: []StatusChange{}}
	var failed []*models.Goal

	for _, g := range active {
		entries, err := s.entries.ListByGoalID(ctx, g.ID)
		if err != nil {
			return nil, Storage("list progress entries", err)
		}
		rollup := Aggregate(entries, g.TargetValue, g.Deadline, now)

		next, changed := Resolve(g.Status, rollup.CurrentValue, g.TargetValue, g.Deadline, now)
		if !changed {
			continue
		}

		from := g.Status
		g.Status = next
		if err := s.goals.UpdateStatus(ctx, g, from); err != nil {
			if errors.Is(err, ErrGoalNotActive) {
				// Lost a race with an explicit transition; skip, the row is
				// already terminal.
				s.logger.Debug("sync_skipped_concurrent_transition",
					zap.String("goal_id", g.ID.String()),
				)
				continue
			}
			return nil, Storage("sync status", err)
		}
		result.Updated = append(result.Updated, StatusChange{GoalID: g.ID, From: from, To: next})
		if next == models.GoalStatusCompletedFailure {
			failed = append(failed, g)
		}
	}

	if s.trigger != nil {
		for _, g := range failed {
			s.trigger.Trigger(ctx, g)
		}
	}

	s.logger.Info("status_sync_completed",
		zap.String("user_id", userID.String()),
		zap.Int("checked", result.Checked),
		zap.Int("updated", len(result.Updated)),
	)
	return result, nil
}

// ChainMember pairs a chain goal with its rollup for history views.
type ChainMember struct {
	Goal   *models.Goal `json:"goal"`
	Rollup Rollup       `json:"progress"`
}

// GetGoalHistory returns the goal's full iteration chain, oldest first,
// each member with its progress rollup.
func (s *Service) GetGoalHistory(ctx context.Context, userID, goalID uuid.UUID) ([]ChainMember, error) {
	g, err := s.loadGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	chain, err := ResolveChain(ctx, s.goals, g)
	if err != nil {
		return nil, err
	}
	history := make([]ChainMember, 0, len(chain))
	for _, member := range chain {
		rollup, err := s.rollup(ctx, member)
		if err != nil {
			return nil, err
		}
		history = append(history, ChainMember{Goal: member, Rollup: rollup})
	}
	return history, nil
}

func (s *Service) loadGoal(ctx context.Context, userID, goalID uuid.UUID) (*models.Goal, error) {
	g, err := s.goals.GetByID(ctx, userID, goalID)
	if err != nil {
		if errors.Is(err, ErrGoalNotFound) {
			return nil, NotFound(ErrGoalNotFound)
		}
		return nil, Storage("get goal", err)
	}
	return g, nil
}

func (s *Service) requireActiveGoal(ctx context.Context, userID, goalID uuid.UUID) (*models.Goal, error) {
	g, err := s.loadGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	if g.Status != models.GoalStatusActive {
		return nil, InvalidState(ErrGoalNotActive)
	}
	return g, nil
}

func (s *Service) rollup(ctx context.Context, g *models.Goal) (Rollup, error) {
	entries, err := s.entries.ListByGoalID(ctx, g.ID)
	if err != nil {
		return Rollup{}, Storage("list progress entries", err)
	}
	return Aggregate(entries, g.TargetValue, g.Deadline, s.now()), nil
}

func (s *Service) updateStatusGuarded(ctx context.Context, g *models.Goal) error {
	if err := s.goals.UpdateStatus(ctx, g, models.GoalStatusActive); err != nil {
		if errors.Is(err, ErrGoalNotActive) {
			return InvalidState(ErrGoalNotActive)
		}
		if errors.Is(err, ErrGoalNotFound) {
			return NotFound(ErrGoalNotFound)
		}
		return Storage("update status", err)
	}
	return nil
}

func validateGoalFields(name string, target decimal.Decimal, deadline time.Time) error {
	if name == "" {
		return Validation("name is required")
	}
	if len(name) > MaxGoalNameLength {
		return Validation("name exceeds %d characters", MaxGoalNameLength)
	}
	if !target.IsPositive() {
		return Validation("target_value must be positive")
	}
	if deadline.IsZero() {
		return Validation("deadline is required")
	}
	return nil
}

func validateProgressFields(params ProgressParams) error {
	if !params.Value.IsPositive() {
		return Validation("value must be positive")
	}
	if params.Notes != nil && len(*params.Notes) > MaxNotesLength {
		return Validation("notes exceed %d characters", MaxNotesLength)
	}
	return nil
}

func normalizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
