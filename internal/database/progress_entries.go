package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strideapp/stride/internal/goal"
	"github.com/strideapp/stride/internal/models"
)

// ProgressEntryRepository handles progress entry database operations
type ProgressEntryRepository struct {
	db *DB
}

// NewProgressEntryRepository creates a new progress entry repository
func NewProgressEntryRepository(db *DB) *ProgressEntryRepository {
	return &ProgressEntryRepository{db: db}
}

// Create inserts a new progress entry
func (r *ProgressEntryRepository) Create(ctx context.Context, e *models.ProgressEntry) error {
	query := `
		INSERT INTO progress_entries (id, goal_id, value, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		e.ID,
		e.GoalID,
		e.Value,
		nullString(e.Notes),
		now,
		now,
	).Scan(&e.CreatedAt, &e.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create progress entry: %w", err)
	}

	return nil
}

// GetByID retrieves a progress entry by ID, scoped to its goal
func (r *ProgressEntryRepository) GetByID(ctx context.Context, goalID, id uuid.UUID) (*models.ProgressEntry, error) {
	e := &models.ProgressEntry{}
	var notes sql.NullString

	query := `
		SELECT id, goal_id, value, notes, created_at, updated_at
		FROM progress_entries
		WHERE id = $1 AND goal_id = $2
	`

	err := r.db.QueryRowContext(ctx, query, id, goalID).Scan(
		&e.ID,
		&e.GoalID,
		&e.Value,
		&notes,
		&e.CreatedAt,
		&e.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, goal.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress entry: %w", err)
	}

	if notes.Valid {
		e.Notes = &notes.String
	}

	return e, nil
}

// ListByGoalID retrieves all progress entries for a goal, oldest first
func (r *ProgressEntryRepository) ListByGoalID(ctx context.Context, goalID uuid.UUID) ([]*models.ProgressEntry, error) {
	query := `
		SELECT id, goal_id, value, notes, created_at, updated_at
		FROM progress_entries
		WHERE goal_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.ProgressEntry
	for rows.Next() {
		e := &models.ProgressEntry{}
		var notes sql.NullString

		err := rows.Scan(
			&e.ID,
			&e.GoalID,
			&e.Value,
			&notes,
			&e.CreatedAt,
			&e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress entry: %w", err)
		}

		if notes.Valid {
			e.Notes = &notes.String
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating progress entries: %w", err)
	}

	return entries, nil
}

// CountByGoalID returns the number of progress entries recorded for a goal
func (r *ProgressEntryRepository) CountByGoalID(ctx context.Context, goalID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM progress_entries WHERE goal_id = $1`, goalID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count progress entries: %w", err)
	}

	return count, nil
}

// Update persists changes to a progress entry's value and notes
func (r *ProgressEntryRepository) Update(ctx context.Context, e *models.ProgressEntry) error {
	query := `
		UPDATE progress_entries
		SET value = $3, notes = $4, updated_at = $5
		WHERE id = $1 AND goal_id = $2
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		e.ID,
		e.GoalID,
		e.Value,
		nullString(e.Notes),
		time.Now(),
	).Scan(&e.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return goal.ErrEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update progress entry: %w", err)
	}

	return nil
}

// Delete removes a progress entry, scoped to its goal
func (r *ProgressEntryRepository) Delete(ctx context.Context, goalID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM progress_entries WHERE id = $1 AND goal_id = $2`, id, goalID)
	if err != nil {
		return fmt.Errorf("failed to delete progress entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return goal.ErrEntryNotFound
	}

	return nil
}
