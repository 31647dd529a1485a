package progress

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"acadium-backend/internal/events"
	"acadium-backend/internal/logger"
	"acadium-backend/internal/models"
)

// ErrSuperseded is returned by Load when a newer Load (or a tool switch)
// started before this one finished. Its result was discarded.
var ErrSuperseded = errors.New("progress load superseded")

type WriteState int

const (
	WriteNone WriteState = iota
	WritePending
	WriteConfirmed
	WriteFailed
)

func (w WriteState) String() string {
	switch w {
	case WritePending:
		return "pending"
	case WriteConfirmed:
		return "confirmed"
	case WriteFailed:
		return "failed"
	default:
		return "none"
	}
}

type stepWrite struct {
	seq       uint64
	completed bool
	previous  bool
	state     WriteState
	err       error
}

type StoreOption func(*Store)

// WithRollbackOnFailure reverts an optimistic change when its write fails
// and no newer local change to the same step exists.
func WithRollbackOnFailure() StoreOption {
	return func(s *Store) { s.rollbackOnFailure = true }
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Store is the completed-step set for the current user and one tool.
// Reads never block on I/O; writes are applied locally first and persisted
// in the background.
type Store struct {
	repo Repository
	auth Identity
	pub  events.Publisher
	log  *logger.Logger

	now               func() time.Time
	rollbackOnFailure bool

	mu         sync.RWMutex
	toolID     string
	generation uint64
	loadSeq    uint64
	completed  map[string]struct{}
	writes     map[string]*stepWrite
	writeSeq   uint64
	loading    bool
	err        error

	inflight sync.WaitGroup
}

// NewStore builds an empty store. pub may be nil, in which case successful
// writes are not announced.
func NewStore(repo Repository, auth Identity, pub events.Publisher, log *logger.Logger, opts ...StoreOption) *Store {
	s := &Store{
		repo:      repo,
		auth:      auth,
		pub:       pub,
		log:       logger.OrNop(log).With("component", "ProgressStore"),
		now:       time.Now,
		completed: make(map[string]struct{}),
		writes:    make(map[string]*stepWrite),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the set with the persisted state of toolID. Selecting a
// different tool discards the previous tool's set before any I/O. On
// failure the set is left as it was and the error is kept in Err.
// An anonymous session is a no-op.
func (s *Store) Load(ctx context.Context, toolID string) error {
	s.mu.Lock()
	if toolID != s.toolID {
		s.toolID = toolID
		s.generation++
		s.completed = make(map[string]struct{})
		s.writes = make(map[string]*stepWrite)
		s.loading = false
		s.err = nil
	}
	s.mu.Unlock()

	userID, ok := s.auth.CurrentUser(ctx)
	if !ok {
		s.log.Debug("no authenticated user, skipping load", "tool_id", toolID)
		return nil
	}

	s.mu.Lock()
	s.loadSeq++
	seq, gen, since := s.loadSeq, s.generation, s.writeSeq
	s.loading = true
	s.mu.Unlock()

	records, err := s.repo.ListByTool(ctx, userID, toolID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.loadSeq || gen != s.generation {
		return ErrSuperseded
	}
	s.loading = false

	if err != nil {
		s.err = fmt.Errorf("failed to load progress for %s: %w", toolID, err)
		s.log.Error("progress load failed", "tool_id", toolID, "error", err)
		return s.err
	}

	set := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if rec.Completed {
			set[rec.StepID] = struct{}{}
		}
	}
	// unconfirmed changes, and any change made after the read started, win
	// over the snapshot
	for stepID, w := range s.writes {
		if w.state != WritePending && w.seq <= since {
			continue
		}
		completed := w.completed
		if w.state == WriteFailed && s.rollbackOnFailure {
			completed = w.previous
		}
		if completed {
			set[stepID] = struct{}{}
		} else {
			delete(set, stepID)
		}
	}
	s.completed = set
	s.err = nil
	return nil
}

func (s *Store) IsStepCompleted(stepID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.completed[stepID]
	return ok
}

func (s *Store) MarkStepComplete(ctx context.Context, stepID string) {
	s.mark(ctx, stepID, true)
}

func (s *Store) MarkStepIncomplete(ctx context.Context, stepID string) {
	s.mark(ctx, stepID, false)
}

func (s *Store) mark(ctx context.Context, stepID string, completed bool) {
	userID, ok := s.auth.CurrentUser(ctx)
	if !ok {
		s.log.Debug("no authenticated user, ignoring step change", "step_id", stepID)
		return
	}

	s.mu.Lock()
	if s.toolID == "" {
		s.mu.Unlock()
		s.log.Warn("step change before any tool was loaded", "step_id", stepID)
		return
	}
	toolID, gen := s.toolID, s.generation
	_, previous := s.completed[stepID]
	if completed {
		s.completed[stepID] = struct{}{}
	} else {
		delete(s.completed, stepID)
	}
	s.writeSeq++
	seq := s.writeSeq
	s.writes[stepID] = &stepWrite{seq: seq, completed: completed, previous: previous, state: WritePending}
	s.mu.Unlock()

	rec := models.NewCompletionRecord(userID, toolID, stepID, completed, nil, s.now().UTC())

	s.inflight.Add(1)
	go s.persist(context.WithoutCancel(ctx), gen, seq, rec)
}

func (s *Store) persist(ctx context.Context, gen, seq uint64, rec *models.CompletionRecord) {
	defer s.inflight.Done()

	err := s.repo.Upsert(ctx, rec)

	s.mu.Lock()
	if w := s.writes[rec.StepID]; gen == s.generation && w != nil && w.seq == seq {
		if err != nil {
			w.state = WriteFailed
			w.err = err
			if s.rollbackOnFailure {
				if w.previous {
					s.completed[rec.StepID] = struct{}{}
				} else {
					delete(s.completed, rec.StepID)
				}
			}
		} else {
			w.state = WriteConfirmed
			w.err = nil
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("failed to save step progress",
			"tool_id", rec.ToolID, "step_id", rec.StepID, "completed", rec.Completed, "error", err)
		return
	}

	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, events.NewProgressUpdated(rec.UserID, rec.ToolID, rec.StepID)); err != nil {
		s.log.Warn("failed to publish progress update", "tool_id", rec.ToolID, "error", err)
	}
}

// RetryFailed re-issues the latest intent of every failed step and returns
// how many writes were started.
func (s *Store) RetryFailed(ctx context.Context) int {
	s.mu.RLock()
	intents := make(map[string]bool)
	for stepID, w := range s.writes {
		if w.state == WriteFailed {
			intents[stepID] = w.completed
		}
	}
	s.mu.RUnlock()

	for stepID, completed := range intents {
		s.mark(ctx, stepID, completed)
	}
	return len(intents)
}

// Wait blocks until every write started so far has settled.
func (s *Store) Wait() {
	s.inflight.Wait()
}

func (s *Store) WriteState(stepID string) WriteState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.writes[stepID]; ok {
		return w.state
	}
	return WriteNone
}

// WriteError returns the error of the step's latest write, if it failed.
func (s *Store) WriteError(stepID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.writes[stepID]; ok {
		return w.err
	}
	return nil
}

func (s *Store) FailedSteps() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var failed []string
	for stepID, w := range s.writes {
		if w.state == WriteFailed {
			failed = append(failed, stepID)
		}
	}
	sort.Strings(failed)
	return failed
}

// CompletedSteps returns the completed step ids, sorted.
func (s *Store) CompletedSteps() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	steps := make([]string, 0, len(s.completed))
	for stepID := range s.completed {
		steps = append(steps, stepID)
	}
	sort.Strings(steps)
	return steps
}

func (s *Store) ToolID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.toolID
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err is the error of the last load, nil after a successful one.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
