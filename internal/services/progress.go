package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"acadium-backend/internal/catalog"
	"acadium-backend/internal/events"
	"acadium-backend/internal/logger"
	"acadium-backend/internal/models"
	"acadium-backend/internal/progress"
)

// ProgressService is the server side of progress tracking: it validates
// step changes against the catalog, persists them and announces them.
type ProgressService struct {
	repo     progress.Repository
	cat      *catalog.Catalog
	pub      events.Publisher
	log      *logger.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewProgressService(repo progress.Repository, cat *catalog.Catalog, pub events.Publisher, log *logger.Logger) *ProgressService {
	return &ProgressService{
		repo:     repo,
		cat:      cat,
		pub:      pub,
		log:      logger.OrNop(log).With("service", "ProgressService"),
		validate: newValidator(),
		now:      time.Now,
	}
}

// UpdateProgress applies a function-endpoint request. Completed defaults to true.
func (s *ProgressService) UpdateProgress(ctx context.Context, userID uuid.UUID, req models.UpdateProgressRequest) (*models.CompletionRecord, error) {
	req.ToolID = strings.TrimSpace(req.ToolID)
	req.StepID = strings.TrimSpace(req.StepID)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationFields(err)
	}

	completed := true
	if req.Completed != nil {
		completed = *req.Completed
	}
	return s.SetStep(ctx, userID, req.ToolID, req.StepID, completed, req.Notes)
}

// SetStep upserts one step's completion for userID and publishes
// progress_updated on success.
func (s *ProgressService) SetStep(ctx context.Context, userID uuid.UUID, toolID, stepID string, completed bool, notes *string) (*models.CompletionRecord, error) {
	if userID == uuid.Nil {
		return nil, &UnauthorizedError{Message: "Authentication required"}
	}
	if err := s.validate.Struct(models.StepNotesRequest{Notes: notes}); err != nil {
		return nil, validationFields(err)
	}
	if err := s.checkStep(toolID, stepID); err != nil {
		return nil, err
	}

	rec := models.NewCompletionRecord(userID, toolID, stepID, completed, notes, s.now().UTC())
	if err := s.repo.Upsert(ctx, rec); err != nil {
		s.log.Error("failed to save step progress", "user_id", userID, "tool_id", toolID, "step_id", stepID, "error", err)
		return nil, fmt.Errorf("failed to save progress: %w", err)
	}

	if s.pub != nil {
		if err := s.pub.Publish(ctx, events.NewProgressUpdated(userID, toolID, stepID)); err != nil {
			s.log.Warn("failed to publish progress update", "user_id", userID, "tool_id", toolID, "error", err)
		}
	}
	return rec, nil
}

func (s *ProgressService) checkStep(toolID, stepID string) error {
	tool, ok := s.cat.Tool(toolID)
	if !ok {
		return &ValidationError{Fields: map[string]string{"toolId": "unknown tool " + toolID}}
	}
	if !tool.HasStep(stepID) {
		return &ValidationError{Fields: map[string]string{"stepId": "unknown step " + stepID + " for tool " + toolID}}
	}
	return nil
}

func (s *ProgressService) ListByTool(ctx context.Context, userID uuid.UUID, toolID string) ([]models.CompletionRecord, error) {
	if _, ok := s.cat.Tool(toolID); !ok {
		return nil, &NotFoundError{Message: "Tool not found"}
	}
	records, err := s.repo.ListByTool(ctx, userID, toolID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.CompletionRecord{}
	}
	return records, nil
}

func (s *ProgressService) ListCompleted(ctx context.Context, userID uuid.UUID) ([]models.CompletionRecord, error) {
	records, err := s.repo.ListCompleted(ctx, userID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.CompletionRecord{}
	}
	return records, nil
}

// Summary computes per-tool completion for every catalog tool.
func (s *ProgressService) Summary(ctx context.Context, userID uuid.UUID) (map[string]models.ToolSummary, error) {
	records, err := s.repo.ListCompleted(ctx, userID)
	if err != nil {
		return nil, err
	}
	return progress.Summarize(s.cat, records), nil
}
