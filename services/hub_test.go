package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingotutor/cache"
	applog "lingotutor/logger"
)

func dialHub(t *testing.T, hub *Hub, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	return dialHubSession(t, hub, userID, uuid.NewString())
}

func dialHubSession(t *testing.T, hub *Hub, userID uuid.UUID, tokenID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.RegisterClient(conn, userID, tokenID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	before := hub.ConnectedClients(userID)
	require.Eventually(t, func() bool { return hub.ConnectedClients(userID) == before+1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func TestHubPushesOwnInvalidationsOnly(t *testing.T) {
	store := cache.NewMemoryStore()
	hub := NewHub(store, applog.Nop())
	go hub.Run()

	userID := uuid.New()
	conn := dialHub(t, hub, userID)

	ctx := context.Background()
	require.NoError(t, store.Invalidate(ctx, cache.ThreadsKey(uuid.New())))
	require.NoError(t, store.Invalidate(ctx, cache.ThreadsKey(userID)))

	var msg struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "invalidate", msg.Type)
	assert.Equal(t, cache.ThreadsKey(userID), msg.Payload["key"])
}

func TestHubAnswersPing(t *testing.T) {
	hub := NewHub(cache.NewMemoryStore(), applog.Nop())
	go hub.Run()
	conn := dialHub(t, hub, uuid.New())

	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))

	var msg Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Type)
}

func TestHubUnregistersOnClose(t *testing.T) {
	store := cache.NewMemoryStore()
	hub := NewHub(store, applog.Nop())
	go hub.Run()
	userID := uuid.New()
	conn := dialHub(t, hub, userID)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ConnectedClients(userID) == 0 }, 2*time.Second, 5*time.Millisecond)

	assert.NoError(t, store.Invalidate(context.Background(), cache.ThreadsKey(userID)))
}

func TestHubClosesConnectionsOfSignedOutSession(t *testing.T) {
	store := cache.NewMemoryStore()
	hub := NewHub(store, applog.Nop())
	go hub.Run()
	userID := uuid.New()
	signedOut := dialHubSession(t, hub, userID, "token-a")
	other := dialHubSession(t, hub, userID, "token-b")
	require.Equal(t, 2, hub.ConnectedClients(userID))

	require.NoError(t, store.Invalidate(context.Background(), cache.SessionKey(userID, "token-a")))

	require.NoError(t, signedOut.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := signedOut.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	require.Eventually(t, func() bool { return hub.ConnectedClients(userID) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, store.Invalidate(context.Background(), cache.ThreadsKey(userID)))
	var msg Message
	require.NoError(t, other.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, other.ReadJSON(&msg))
	assert.Equal(t, "invalidate", msg.Type)
}
