package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const ProgressUpdated = "progress_updated"

// Event is a refresh trigger. Subscribers must not rely on ToolID/StepID
// to patch state incrementally; they are informational only.
type Event struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"user_id"`
	ToolID string    `json:"tool_id,omitempty"`
	StepID string    `json:"step_id,omitempty"`
	At     time.Time `json:"at"`
}

func NewProgressUpdated(userID uuid.UUID, toolID, stepID string) Event {
	return Event{
		Type:   ProgressUpdated,
		UserID: userID,
		ToolID: toolID,
		StepID: stepID,
		At:     time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber delivers events for one user to fn until ctx is done.
// Subscribe returns once the subscription is active.
type Subscriber interface {
	Subscribe(ctx context.Context, userID uuid.UUID, fn func(Event)) error
}

type Bus interface {
	Publisher
	Subscriber
	Close() error
}
