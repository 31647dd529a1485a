package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"acadium-backend/internal/models"
)

// SQLiteProgressRepo is the single-node user_learning_progress store.
// Timestamps are kept as RFC 3339 text.
type SQLiteProgressRepo struct {
	db *sql.DB
}

func NewSQLiteProgressRepo(db *sql.DB) *SQLiteProgressRepo {
	return &SQLiteProgressRepo{db: db}
}

func (r *SQLiteProgressRepo) Upsert(ctx context.Context, rec *models.CompletionRecord) error {
	query := `
		INSERT INTO user_learning_progress (user_id, tool_id, step_id, completed, completed_at, notes, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, tool_id, step_id) DO UPDATE SET
			completed = excluded.completed,
			completed_at = excluded.completed_at,
			notes = COALESCE(excluded.notes, user_learning_progress.notes),
			updated_at = excluded.updated_at
		RETURNING notes, created_at
	`

	var completedAt sql.NullString
	if rec.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*rec.CompletedAt), Valid: true}
	}
	var notes sql.NullString
	if rec.Notes != nil {
		notes = sql.NullString{String: *rec.Notes, Valid: true}
	}
	updatedAt := formatTime(rec.UpdatedAt)

	var storedNotes sql.NullString
	var createdAt string
	err := r.db.QueryRowContext(ctx, query,
		rec.UserID.String(), rec.ToolID, rec.StepID, rec.Completed, completedAt, notes, updatedAt, updatedAt,
	).Scan(&storedNotes, &createdAt)
	if err != nil {
		return fmt.Errorf("failed to upsert progress: %w", err)
	}

	rec.Notes = nil
	if storedNotes.Valid {
		n := storedNotes.String
		rec.Notes = &n
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return err
	}
	return nil
}

func (r *SQLiteProgressRepo) ListByTool(ctx context.Context, userID uuid.UUID, toolID string) ([]models.CompletionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+progressColumns+`
		FROM user_learning_progress
		WHERE user_id = ? AND tool_id = ?
		ORDER BY step_id
	`, userID.String(), toolID)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}
	return scanSQLiteProgress(rows)
}

func (r *SQLiteProgressRepo) ListCompleted(ctx context.Context, userID uuid.UUID) ([]models.CompletionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+progressColumns+`
		FROM user_learning_progress
		WHERE user_id = ? AND completed = 1
		ORDER BY tool_id, step_id
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query completed progress: %w", err)
	}
	return scanSQLiteProgress(rows)
}

func scanSQLiteProgress(rows *sql.Rows) ([]models.CompletionRecord, error) {
	defer rows.Close()

	var out []models.CompletionRecord
	for rows.Next() {
		var (
			rec                  models.CompletionRecord
			userID               string
			completedAt, notes   sql.NullString
			updatedAt, createdAt string
		)
		if err := rows.Scan(&userID, &rec.ToolID, &rec.StepID, &rec.Completed,
			&completedAt, &notes, &updatedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}

		var err error
		if rec.UserID, err = uuid.Parse(userID); err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
		}
		if completedAt.Valid {
			t, err := parseTime(completedAt.String)
			if err != nil {
				return nil, err
			}
			rec.CompletedAt = &t
		}
		if notes.Valid {
			n := notes.String
			rec.Notes = &n
		}
		if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read progress rows: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
