package models

import (
	"time"

	"github.com/google/uuid"
)

// CompletionRecord is one row of user_learning_progress, keyed by
// (user_id, tool_id, step_id).
type CompletionRecord struct {
	UserID      uuid.UUID  `json:"user_id"`
	ToolID      string     `json:"tool_id"`
	StepID      string     `json:"step_id"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	Notes       *string    `json:"notes"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewCompletionRecord builds the upsert payload for a completion transition.
// CompletedAt is set when completed is true and cleared otherwise.
func NewCompletionRecord(userID uuid.UUID, toolID, stepID string, completed bool, notes *string, now time.Time) *CompletionRecord {
	rec := &CompletionRecord{
		UserID:    userID,
		ToolID:    toolID,
		StepID:    stepID,
		Completed: completed,
		Notes:     notes,
		UpdatedAt: now,
	}
	if completed {
		at := now
		rec.CompletedAt = &at
	}
	return rec
}

type ToolSummary struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Percent is the rounded-down completion percentage, 0 for an empty tool.
func (s ToolSummary) Percent() int {
	if s.Total <= 0 {
		return 0
	}
	return s.Completed * 100 / s.Total
}

type UpdateProgressRequest struct {
	ToolID    string  `json:"toolId" validate:"required,max=64"`
	StepID    string  `json:"stepId" validate:"required,max=128"`
	Completed *bool   `json:"completed"`
	Notes     *string `json:"notes" validate:"omitempty,max=2000"`
}

type StepNotesRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=2000"`
}

// Function endpoint envelopes.
type FunctionSuccess struct {
	Success bool              `json:"success"`
	Data    *CompletionRecord `json:"data"`
}

type FunctionError struct {
	Error string `json:"error"`
}
