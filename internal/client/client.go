// Package client talks to the progress HTTP API. Client satisfies
// progress.Repository, so a progress.Store or progress.Aggregator can run
// against a remote server.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"acadium-backend/internal/middleware"
	"acadium-backend/internal/models"
)

type Client struct {
	http *resty.Client
}

// New returns a client for baseURL authenticated with token.
func New(baseURL, token string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(token).
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

type listResponse struct {
	Items []models.CompletionRecord `json:"items"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

func apiError(res *resty.Response) error {
	e := &APIError{Status: res.StatusCode()}
	switch body := res.Error().(type) {
	case *models.ErrorResponse:
		e.Code, e.Message = body.Error.Code, body.Error.Message
	case *models.FunctionError:
		e.Message = body.Error
	}
	if e.Message == "" {
		e.Message = http.StatusText(e.Status)
	}
	return e
}

// ListByTool reads the caller's rows for one tool. The server scopes rows to
// the token's user; userID is not sent.
func (c *Client) ListByTool(ctx context.Context, userID uuid.UUID, toolID string) ([]models.CompletionRecord, error) {
	var out listResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&models.ErrorResponse{}).
		Get("/api/v1/progress/" + url.PathEscape(toolID))
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	if res.IsError() {
		return nil, apiError(res)
	}
	return out.Items, nil
}

func (c *Client) ListCompleted(ctx context.Context, userID uuid.UUID) ([]models.CompletionRecord, error) {
	var out listResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&models.ErrorResponse{}).
		Get("/api/v1/progress")
	if err != nil {
		return nil, fmt.Errorf("failed to list completed progress: %w", err)
	}
	if res.IsError() {
		return nil, apiError(res)
	}
	return out.Items, nil
}

// Upsert goes through the update-progress function and copies the stored
// row back into rec.
func (c *Client) Upsert(ctx context.Context, rec *models.CompletionRecord) error {
	completed := rec.Completed
	var out models.FunctionSuccess
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(models.UpdateProgressRequest{
			ToolID:    rec.ToolID,
			StepID:    rec.StepID,
			Completed: &completed,
			Notes:     rec.Notes,
		}).
		SetResult(&out).
		SetError(&models.FunctionError{}).
		Post("/functions/v1/update-progress")
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if res.IsError() {
		return apiError(res)
	}
	if out.Data != nil {
		*rec = *out.Data
	}
	return nil
}

func (c *Client) Summary(ctx context.Context) (map[string]models.ToolSummary, error) {
	out := make(map[string]models.ToolSummary)
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&models.ErrorResponse{}).
		Get("/api/v1/progress/summary")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch summary: %w", err)
	}
	if res.IsError() {
		return nil, apiError(res)
	}
	return out, nil
}

// TokenIdentity reads the user from a bearer token without verifying it; the
// server verifies on every call.
type TokenIdentity struct {
	userID uuid.UUID
}

func NewTokenIdentity(token string) (*TokenIdentity, error) {
	if token == "" {
		return &TokenIdentity{}, nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	userID, err := middleware.UserIDFromClaims(claims)
	if err != nil {
		return nil, fmt.Errorf("token has no user: %w", err)
	}
	return &TokenIdentity{userID: userID}, nil
}

func (t *TokenIdentity) CurrentUser(context.Context) (uuid.UUID, bool) {
	return t.userID, t.userID != uuid.Nil
}
