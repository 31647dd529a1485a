package progress

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"acadium-backend/internal/models"
)

var errUnavailable = errors.New("progress service unavailable")

type rowKey struct {
	userID uuid.UUID
	toolID string
	stepID string
}

// memoryRepo mimics user_learning_progress: one row per (user, tool, step).
type memoryRepo struct {
	mu   sync.Mutex
	rows map[rowKey]models.CompletionRecord

	listByToolCalls    int
	listCompletedCalls int
	upsertCalls        int

	listErr   error
	upsertErr error

	// when set, ListByTool for gatedTool (or any tool if empty) waits for
	// a value before answering
	listGate  chan struct{}
	gatedTool string
	// when set, ListByTool takes its snapshot, signals listRead and then
	// waits on listHold before returning it
	listRead chan struct{}
	listHold chan struct{}
	// when set, Upsert waits for a value before answering
	upsertGate chan struct{}
	// per-record failure injection, consulted after upsertErr
	upsertHook func(rec *models.CompletionRecord) error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[rowKey]models.CompletionRecord)}
}

func (r *memoryRepo) ListByTool(ctx context.Context, userID uuid.UUID, toolID string) ([]models.CompletionRecord, error) {
	r.mu.Lock()
	gate := r.listGate
	if r.gatedTool != "" && r.gatedTool != toolID {
		gate = nil
	}
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	r.listByToolCalls++
	if r.listErr != nil {
		r.mu.Unlock()
		return nil, r.listErr
	}
	var out []models.CompletionRecord
	for k, rec := range r.rows {
		if k.userID == userID && k.toolID == toolID {
			out = append(out, rec)
		}
	}
	read, hold := r.listRead, r.listHold
	r.mu.Unlock()

	if hold != nil {
		if read != nil {
			close(read)
		}
		<-hold
	}
	return out, nil
}

func (r *memoryRepo) ListCompleted(ctx context.Context, userID uuid.UUID) ([]models.CompletionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCompletedCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []models.CompletionRecord
	for k, rec := range r.rows {
		if k.userID == userID && rec.Completed {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryRepo) Upsert(ctx context.Context, rec *models.CompletionRecord) error {
	r.mu.Lock()
	gate := r.upsertGate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertCalls++
	if r.upsertErr != nil {
		return r.upsertErr
	}
	if r.upsertHook != nil {
		if err := r.upsertHook(rec); err != nil {
			return err
		}
	}
	k := rowKey{rec.UserID, rec.ToolID, rec.StepID}
	if existing, ok := r.rows[k]; ok {
		rec.CreatedAt = existing.CreatedAt
		if rec.Notes == nil {
			rec.Notes = existing.Notes
		}
	} else {
		rec.CreatedAt = rec.UpdatedAt
	}
	r.rows[k] = *rec
	return nil
}

func (r *memoryRepo) seed(userID uuid.UUID, toolID string, completed bool, stepIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stepID := range stepIDs {
		r.rows[rowKey{userID, toolID, stepID}] = models.CompletionRecord{
			UserID: userID, ToolID: toolID, StepID: stepID, Completed: completed,
		}
	}
}

func (r *memoryRepo) rowCount(userID uuid.UUID, toolID, stepID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k := range r.rows {
		if k == (rowKey{userID, toolID, stepID}) {
			n++
		}
	}
	return n
}

func (r *memoryRepo) row(userID uuid.UUID, toolID, stepID string) (models.CompletionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[rowKey{userID, toolID, stepID}]
	return rec, ok
}

func (r *memoryRepo) setUpsertErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertErr = err
}

func (r *memoryRepo) setListErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listErr = err
}
