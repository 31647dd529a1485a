// Package progress tracks which learning-path steps a user has completed.
//
// A Store owns the completed-step set of one (user, tool) pair and persists
// changes optimistically. An Aggregator derives per-tool completion summaries
// for the user from a single batched read. The two share no state; they are
// joined only by "progress_updated" events on an events.Bus.
package progress

import (
	"context"

	"github.com/google/uuid"

	"acadium-backend/internal/models"
)

// Repository is the remote user_learning_progress table. Implementations
// must scope every call to userID.
type Repository interface {
	ListByTool(ctx context.Context, userID uuid.UUID, toolID string) ([]models.CompletionRecord, error)
	ListCompleted(ctx context.Context, userID uuid.UUID) ([]models.CompletionRecord, error)
	Upsert(ctx context.Context, rec *models.CompletionRecord) error
}

// Identity resolves the authenticated user. ok is false for anonymous sessions.
type Identity interface {
	CurrentUser(ctx context.Context) (userID uuid.UUID, ok bool)
}

// StaticIdentity is a fixed user; the zero value is anonymous.
type StaticIdentity uuid.UUID

func (s StaticIdentity) CurrentUser(context.Context) (uuid.UUID, bool) {
	id := uuid.UUID(s)
	return id, id != uuid.Nil
}
