package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/strideapp/stride/internal/goal"
	"github.com/strideapp/stride/internal/models"
)

// GoalRepository handles goal database operations
type GoalRepository struct {
	db *DB
}

// NewGoalRepository creates a new goal repository
func NewGoalRepository(db *DB) *GoalRepository {
	return &GoalRepository{db: db}
}

const goalColumns = `id, user_id, name, target_value, deadline, status, parent_goal_id,
		reflection_notes, ai_summary, abandonment_reason, ai_generation_attempts, created_at, updated_at`

// Create inserts a new goal
func (r *GoalRepository) Create(ctx context.Context, g *models.Goal) error {
	query := `
		INSERT INTO goals (id, user_id, name, target_value, deadline, status, parent_goal_id,
			reflection_notes, ai_generation_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		g.ID,
		g.UserID,
		g.Name,
		g.TargetValue,
		g.Deadline,
		g.Status,
		nullUUID(g.ParentGoalID),
		nullString(g.ReflectionNotes),
		g.AIGenerationAttempts,
		now,
		now,
	).Scan(&g.CreatedAt, &g.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}

	return nil
}

// GetByID retrieves a goal by ID, scoped to its owner
func (r *GoalRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Goal, error) {
	query := `
		SELECT ` + goalColumns + `
		FROM goals
		WHERE id = $1 AND user_id = $2
	`

	g, err := scanGoal(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goal.ErrGoalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}

	return g, nil
}

// ListByParentID retrieves the direct children of a goal, oldest first
func (r *GoalRepository) ListByParentID(ctx context.Context, userID, parentID uuid.UUID) ([]*models.Goal, error) {
	query := `
		SELECT ` + goalColumns + `
		FROM goals
		WHERE user_id = $1 AND parent_goal_id = $2
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, userID, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query child goals: %w", err)
	}
	defer rows.Close()

	return collectGoals(rows)
}

// Update persists user-editable goal fields
func (r *GoalRepository) Update(ctx context.Context, g *models.Goal) error {
	query := `
		UPDATE goals
		SET name = $3, target_value = $4, deadline = $5, reflection_notes = $6,
			ai_summary = $7, ai_generation_attempts = $8, updated_at = $9
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		g.ID,
		g.UserID,
		g.Name,
		g.TargetValue,
		g.Deadline,
		nullString(g.ReflectionNotes),
		nullString(g.AISummary),
		g.AIGenerationAttempts,
		time.Now(),
	).Scan(&g.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return goal.ErrGoalNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}

	return nil
}

// UpdateStatus persists a status transition guarded by the expected current
// status. Losing the guard to a concurrent transition reports ErrGoalNotActive
// so callers can treat the row as already transitioned.
func (r *GoalRepository) UpdateStatus(ctx context.Context, g *models.Goal, expect models.GoalStatus) error {
	query := `
		UPDATE goals
		SET status = $4, abandonment_reason = $5, updated_at = $6
		WHERE id = $1 AND user_id = $2 AND status = $3
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		g.ID,
		g.UserID,
		expect,
		g.Status,
		nullString(g.AbandonmentReason),
		time.Now(),
	).Scan(&g.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		checkErr := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM goals WHERE id = $1 AND user_id = $2)`,
			g.ID, g.UserID,
		).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("failed to check goal: %w", checkErr)
		}
		if !exists {
			return goal.ErrGoalNotFound
		}
		return goal.ErrGoalNotActive
	}
	if err != nil {
		return fmt.Errorf("failed to update goal status: %w", err)
	}

	return nil
}

// Delete removes a goal, scoped to its owner
func (r *GoalRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return goal.ErrGoalNotFound
	}

	return nil
}

// ListByUserID retrieves a page of the user's goals, newest first, optionally
// filtered by status, along with the unpaginated total
func (r *GoalRepository) ListByUserID(ctx context.Context, userID uuid.UUID, status *models.GoalStatus, page, pageSize int) ([]*models.Goal, int, error) {
	countQuery := `SELECT COUNT(*) FROM goals WHERE user_id = $1`
	countArgs := []any{userID}
	if status != nil {
		countQuery += ` AND status = $2`
		countArgs = append(countArgs, string(*status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count goals: %w", err)
	}

	query := `
		SELECT ` + goalColumns + `
		FROM goals
		WHERE user_id = $1
	`
	args := []any{userID}
	argIndex := 2

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, string(*status))
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	goals, err := collectGoals(rows)
	if err != nil {
		return nil, 0, err
	}

	return goals, total, nil
}

// ListActiveByUserID retrieves the user's active goals, oldest first,
// optionally restricted to the given IDs and capped at limit rows
func (r *GoalRepository) ListActiveByUserID(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, limit int) ([]*models.Goal, error) {
	query := `
		SELECT ` + goalColumns + `
		FROM goals
		WHERE user_id = $1 AND status = $2
	`
	args := []any{userID, models.GoalStatusActive}
	argIndex := 3

	if len(ids) > 0 {
		query += fmt.Sprintf(" AND id = ANY($%d)", argIndex)
		args = append(args, pq.Array(ids))
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at, id LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active goals: %w", err)
	}
	defer rows.Close()

	return collectGoals(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (*models.Goal, error) {
	g := &models.Goal{}
	var parentID uuid.NullUUID
	var reflectionNotes, aiSummary, abandonmentReason sql.NullString

	err := row.Scan(
		&g.ID,
		&g.UserID,
		&g.Name,
		&g.TargetValue,
		&g.Deadline,
		&g.Status,
		&parentID,
		&reflectionNotes,
		&aiSummary,
		&abandonmentReason,
		&g.AIGenerationAttempts,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		g.ParentGoalID = &parentID.UUID
	}
	if reflectionNotes.Valid {
		g.ReflectionNotes = &reflectionNotes.String
	}
	if aiSummary.Valid {
		g.AISummary = &aiSummary.String
	}
	if abandonmentReason.Valid {
		g.AbandonmentReason = &abandonmentReason.String
	}

	return g, nil
}

func collectGoals(rows *sql.Rows) ([]*models.Goal, error) {
	var goals []*models.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating goals: %w", err)
	}

	return goals, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
