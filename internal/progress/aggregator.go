package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"acadium-backend/internal/catalog"
	"acadium-backend/internal/events"
	"acadium-backend/internal/logger"
	"acadium-backend/internal/models"
)

// Summarize counts, for every catalog tool, the distinct completed steps in
// records. Rows for unknown tools or steps no longer in the catalog are
// ignored, so completed never exceeds total.
func Summarize(cat *catalog.Catalog, records []models.CompletionRecord) map[string]models.ToolSummary {
	done := make(map[string]map[string]struct{})
	for _, rec := range records {
		if !rec.Completed || !cat.HasStep(rec.ToolID, rec.StepID) {
			continue
		}
		if done[rec.ToolID] == nil {
			done[rec.ToolID] = make(map[string]struct{})
		}
		done[rec.ToolID][rec.StepID] = struct{}{}
	}

	out := make(map[string]models.ToolSummary, len(cat.Tools))
	for _, tool := range cat.Tools {
		out[tool.ID] = models.ToolSummary{
			Completed: len(done[tool.ID]),
			Total:     tool.TotalSteps(),
		}
	}
	return out
}

// Aggregator keeps a cross-tool completion summary for the current user.
type Aggregator struct {
	repo Repository
	auth Identity
	cat  *catalog.Catalog
	log  *logger.Logger

	refreshMu sync.Mutex

	mu          sync.RWMutex
	summaries   map[string]models.ToolSummary
	refreshedAt time.Time
	err         error
	listeners   []func(map[string]models.ToolSummary)
}

func NewAggregator(repo Repository, auth Identity, cat *catalog.Catalog, log *logger.Logger) *Aggregator {
	return &Aggregator{
		repo:      repo,
		auth:      auth,
		cat:       cat,
		log:       logger.OrNop(log).With("component", "CompletionAggregator"),
		summaries: make(map[string]models.ToolSummary),
	}
}

// OnUpdate registers fn to receive every published summary map.
func (a *Aggregator) OnUpdate(fn func(map[string]models.ToolSummary)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// RefreshAll recomputes every tool's summary from one read of the user's
// completed rows. Anonymous sessions are a no-op. On failure the previous
// summaries are kept.
func (a *Aggregator) RefreshAll(ctx context.Context) error {
	userID, ok := a.auth.CurrentUser(ctx)
	if !ok {
		return nil
	}

	// one refresh at a time so an older snapshot never replaces a newer one
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	records, err := a.repo.ListCompleted(ctx, userID)
	if err != nil {
		err = fmt.Errorf("failed to refresh completion summaries: %w", err)
		a.mu.Lock()
		a.err = err
		a.mu.Unlock()
		a.log.Error("completion refresh failed", "error", err)
		return err
	}

	summaries := Summarize(a.cat, records)

	a.mu.Lock()
	a.summaries = summaries
	a.refreshedAt = time.Now()
	a.err = nil
	listeners := append([]func(map[string]models.ToolSummary){}, a.listeners...)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(copySummaries(summaries))
	}
	return nil
}

// Run refreshes once and then after every progress event for the current
// user, until ctx is done. It subscribes before the first refresh so no
// notification can slip in between.
func (a *Aggregator) Run(ctx context.Context, sub events.Subscriber) error {
	userID, ok := a.auth.CurrentUser(ctx)
	if !ok {
		return nil
	}

	err := sub.Subscribe(ctx, userID, func(ev events.Event) {
		if ev.Type != events.ProgressUpdated {
			return
		}
		_ = a.RefreshAll(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to progress events: %w", err)
	}

	_ = a.RefreshAll(ctx)

	<-ctx.Done()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (a *Aggregator) Summaries() map[string]models.ToolSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copySummaries(a.summaries)
}

func (a *Aggregator) Summary(toolID string) (models.ToolSummary, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.summaries[toolID]
	return s, ok
}

func (a *Aggregator) RefreshedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.refreshedAt
}

func (a *Aggregator) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

func copySummaries(in map[string]models.ToolSummary) map[string]models.ToolSummary {
	out := make(map[string]models.ToolSummary, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
