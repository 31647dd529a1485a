package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"acadium-backend/internal/logger"
	"acadium-backend/internal/middleware"
	"acadium-backend/internal/models"
	"acadium-backend/internal/services"
)

type progressService interface {
	UpdateProgress(ctx context.Context, userID uuid.UUID, req models.UpdateProgressRequest) (*models.CompletionRecord, error)
	SetStep(ctx context.Context, userID uuid.UUID, toolID, stepID string, completed bool, notes *string) (*models.CompletionRecord, error)
	ListByTool(ctx context.Context, userID uuid.UUID, toolID string) ([]models.CompletionRecord, error)
	ListCompleted(ctx context.Context, userID uuid.UUID) ([]models.CompletionRecord, error)
	Summary(ctx context.Context, userID uuid.UUID) (map[string]models.ToolSummary, error)
}

type ProgressHandler struct {
	progress progressService
	log      *logger.Logger
}

func NewProgressHandler(progress progressService, log *logger.Logger) *ProgressHandler {
	return &ProgressHandler{progress: progress, log: logger.OrNop(log)}
}

// List returns every completed step of the caller across tools.
func (h *ProgressHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	records, err := h.progress.ListCompleted(r.Context(), userID)
	if err != nil {
		h.log.Error("failed to list progress", "user_id", userID, "error", err)
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": records})
}

func (h *ProgressHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	summary, err := h.progress.Summary(r.Context(), userID)
	if err != nil {
		h.log.Error("failed to summarize progress", "user_id", userID, "error", err)
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *ProgressHandler) GetTool(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	toolID := chi.URLParam(r, "toolID")

	records, err := h.progress.ListByTool(r.Context(), userID, toolID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tool_id": toolID,
		"items":   records,
	})
}

// CompleteStep marks a step done. The body may carry {"notes": "..."}.
func (h *ProgressHandler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	var req models.StepNotesRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("BAD_REQUEST", "Invalid request body", r))
		return
	}
	h.setStep(w, r, true, req.Notes)
}

func (h *ProgressHandler) IncompleteStep(w http.ResponseWriter, r *http.Request) {
	h.setStep(w, r, false, nil)
}

func (h *ProgressHandler) setStep(w http.ResponseWriter, r *http.Request, completed bool, notes *string) {
	userID := middleware.GetUserID(r.Context())
	toolID := chi.URLParam(r, "toolID")
	stepID := chi.URLParam(r, "stepID")

	rec, err := h.progress.SetStep(r.Context(), userID, toolID, stepID, completed, notes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func decodeOptionalJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type userResolver interface {
	UserFromRequest(r *http.Request) (uuid.UUID, error)
}

// FunctionHandler serves the update-progress remote function. Every failure
// is reported as 400 {"error": message}.
type FunctionHandler struct {
	progress progressService
	auth     userResolver
	limiter  rateLimiter
	log      *logger.Logger
}

type rateLimiter interface {
	Allow(key string) bool
}

func NewFunctionHandler(progress progressService, auth userResolver, log *logger.Logger) *FunctionHandler {
	return &FunctionHandler{progress: progress, auth: auth, log: logger.OrNop(log).With("function", "update-progress")}
}

// WithLimiter returns a copy of h that rejects callers over limiter's budget.
func (h *FunctionHandler) WithLimiter(limiter rateLimiter) *FunctionHandler {
	limited := *h
	limited.limiter = limiter
	return &limited
}

func (h *FunctionHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *FunctionHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.UserFromRequest(r)
	if err != nil {
		h.fail(w, "Unauthorized: "+err.Error())
		return
	}

	if err := h.allow(userID); err != nil {
		h.log.Warn("update-progress rate limited", "user_id", userID)
		h.fail(w, services.Message(err))
		return
	}

	var req models.UpdateProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, "Invalid request body")
		return
	}

	rec, err := h.progress.UpdateProgress(r.Context(), userID, req)
	if err != nil {
		var ve *services.ValidationError
		if !errors.As(err, &ve) {
			h.log.Error("update-progress failed", "user_id", userID, "tool_id", req.ToolID, "step_id", req.StepID, "error", err)
		}
		h.fail(w, services.Message(err))
		return
	}

	writeJSON(w, http.StatusOK, models.FunctionSuccess{Success: true, Data: rec})
}

func (h *FunctionHandler) allow(userID uuid.UUID) error {
	if h.limiter == nil || h.limiter.Allow(middleware.UserKey(userID)) {
		return nil
	}
	return &services.RateLimitError{Message: "Too many requests. Please try again later."}
}

func (h *FunctionHandler) fail(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, models.FunctionError{Error: message})
}
