package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acadium-backend/internal/events"
	"acadium-backend/internal/middleware"
)

func TestHub_PushesProgressUpdates(t *testing.T) {
	bus := events.NewLocalBus()
	defer bus.Close()
	auth := middleware.NewJWTAuth("test-secret")
	hub := NewHub(bus, auth, nil)
	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	userID := uuid.New()
	token, err := auth.GenerateAccessToken(userID, time.Hour)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return bus.Subscribers(userID) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), events.NewProgressUpdated(userID, "veo3", "veo3-step-1")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string       `json:"type"`
		Payload events.Event `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, events.ProgressUpdated, msg.Type)
	assert.Equal(t, "veo3-step-1", msg.Payload.StepID)
	assert.Equal(t, 1, hub.Connections(userID))
}

func TestHub_RejectsBadToken(t *testing.T) {
	hub := NewHub(events.NewLocalBus(), middleware.NewJWTAuth("test-secret"), nil)

	for _, target := range []string{"/", "/?token=garbage"} {
		rr := httptest.NewRecorder()
		hub.HandleWebSocket(rr, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, target)
	}
}
