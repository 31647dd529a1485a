package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acadium-backend/internal/catalog"
	"acadium-backend/internal/database"
	"acadium-backend/internal/events"
	"acadium-backend/internal/handlers"
	"acadium-backend/internal/middleware"
	"acadium-backend/internal/repository"
	"acadium-backend/internal/router"
	"acadium-backend/internal/services"
	"acadium-backend/internal/websocket"
)

func startServer(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.InitSQLiteSchema(ctx, db))

	cat, err := catalog.Default()
	require.NoError(t, err)
	bus := events.NewLocalBus()
	t.Cleanup(func() { _ = bus.Close() })

	jwtAuth := middleware.NewJWTAuth("test-secret")
	svc := services.NewProgressService(repository.NewSQLiteProgressRepo(db), cat, bus, nil)
	hub := websocket.NewHub(bus, jwtAuth, nil)
	t.Cleanup(hub.Close)

	srv := httptest.NewServer(router.New(
		jwtAuth,
		handlers.NewProgressHandler(svc, nil),
		handlers.NewFunctionHandler(svc, jwtAuth, nil),
		handlers.NewCatalogHandler(cat),
		middleware.NewRateLimiter(1000, time.Minute),
		hub,
		"*",
	))
	t.Cleanup(srv.Close)

	token, err := jwtAuth.GenerateAccessToken(uuid.New(), time.Hour)
	require.NoError(t, err)
	return srv.URL, token
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := newRootCommand()

	assert.Equal(t, "progressctl", cmd.Use)
	for _, name := range []string{"catalog", "migrate", "steps", "complete", "incomplete", "summary"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("api-url"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("token"))
	assert.Equal(t, "false", cmd.PersistentFlags().Lookup("debug").DefValue)
}

func TestCatalogList(t *testing.T) {
	out, err := run(t, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "veo3")
	assert.Contains(t, out, "n8n")
}

func TestCatalogValidate_BadFile(t *testing.T) {
	_, err := run(t, "catalog", "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMigrate_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")

	out, err := run(t, "migrate", "--driver", "sqlite", "--sqlite-path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite schema ready")
}

func TestProgressCommands(t *testing.T) {
	url, token := startServer(t)
	common := []string{"--api-url", url, "--token", token}

	out, err := run(t, append([]string{"complete", "--tool", "veo3", "veo3-step-1", "veo3-step-2"}, common...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 step(s) marked complete")

	out, err = run(t, append([]string{"summary"}, common...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "2/7")

	out, err = run(t, append([]string{"incomplete", "--tool", "veo3", "veo3-step-2"}, common...)...)
	require.NoError(t, err, out)

	out, err = run(t, append([]string{"steps", "--tool", "veo3"}, common...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "[x] veo3-step-1")
	assert.Contains(t, out, "[ ] veo3-step-2")
	assert.Contains(t, out, "1/7 completed")
}

func TestProgressCommands_Errors(t *testing.T) {
	url, token := startServer(t)

	_, err := run(t, "summary", "--api-url", url, "--token", "")
	assert.Error(t, err)

	_, err = run(t, "complete", "--tool", "veo3", "veo3-step-99", "--api-url", url, "--token", token)
	assert.Error(t, err)

	_, err = run(t, "steps", "--tool", "nope", "--api-url", url, "--token", token)
	assert.Error(t, err)
}
