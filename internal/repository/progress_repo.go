package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"acadium-backend/internal/models"
)

const progressColumns = `user_id, tool_id, step_id, completed, completed_at, notes, updated_at, created_at`

// ProgressRepo reads and writes user_learning_progress in Postgres.
type ProgressRepo struct {
	pool *pgxpool.Pool
}

func NewProgressRepo(pool *pgxpool.Pool) *ProgressRepo {
	return &ProgressRepo{pool: pool}
}

// Upsert inserts or updates the row for (user, tool, step). A nil Notes keeps
// the stored notes. CreatedAt and Notes are filled from the stored row.
func (r *ProgressRepo) Upsert(ctx context.Context, rec *models.CompletionRecord) error {
	query := `
		INSERT INTO user_learning_progress (user_id, tool_id, step_id, completed, completed_at, notes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, tool_id, step_id) DO UPDATE SET
			completed = EXCLUDED.completed,
			completed_at = EXCLUDED.completed_at,
			notes = COALESCE(EXCLUDED.notes, user_learning_progress.notes),
			updated_at = EXCLUDED.updated_at
		RETURNING notes, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		rec.UserID, rec.ToolID, rec.StepID, rec.Completed, rec.CompletedAt, rec.Notes, rec.UpdatedAt,
	).Scan(&rec.Notes, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert progress: %w", err)
	}
	return nil
}

func (r *ProgressRepo) ListByTool(ctx context.Context, userID uuid.UUID, toolID string) ([]models.CompletionRecord, error) {
	query := `SELECT ` + progressColumns + `
		FROM user_learning_progress
		WHERE user_id = $1 AND tool_id = $2
		ORDER BY step_id`

	rows, err := r.pool.Query(ctx, query, userID, toolID)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}
	return collectProgress(rows)
}

// ListCompleted returns every completed row of the user across all tools.
func (r *ProgressRepo) ListCompleted(ctx context.Context, userID uuid.UUID) ([]models.CompletionRecord, error) {
	query := `SELECT ` + progressColumns + `
		FROM user_learning_progress
		WHERE user_id = $1 AND completed = TRUE
		ORDER BY tool_id, step_id`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed progress: %w", err)
	}
	return collectProgress(rows)
}

func collectProgress(rows pgx.Rows) ([]models.CompletionRecord, error) {
	defer rows.Close()

	var out []models.CompletionRecord
	for rows.Next() {
		var rec models.CompletionRecord
		if err := rows.Scan(
			&rec.UserID, &rec.ToolID, &rec.StepID, &rec.Completed,
			&rec.CompletedAt, &rec.Notes, &rec.UpdatedAt, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read progress rows: %w", err)
	}
	return out, nil
}
