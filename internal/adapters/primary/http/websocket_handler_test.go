package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mw "github.com/classpulse/classpulse-backend/internal/adapters/primary/http/middleware"
	wsAdapter "github.com/classpulse/classpulse-backend/internal/adapters/primary/websocket"
	"github.com/classpulse/classpulse-backend/internal/auth"
	"github.com/classpulse/classpulse-backend/internal/config"
	"github.com/classpulse/classpulse-backend/internal/core/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		WebSocket: config.WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			SendBufferSize:  16,
			WriteWait:       time.Second,
			PingInterval:    30 * time.Second,
		},
		App: config.AppConfig{Environment: "development"},
	}
}

func newGatewayServer(t *testing.T) (*httptest.Server, *wsAdapter.Registry, *auth.TokenManager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()
	registry := wsAdapter.NewRegistry(wsAdapter.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		WriteWait:    cfg.WebSocket.WriteWait,
		SendBuffer:   cfg.WebSocket.SendBufferSize,
	}, logger)
	tm := auth.NewTokenManager("test-secret", time.Hour)

	handler := NewWebSocketHandler(registry, tm, cfg, logger)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, registry, tm
}

func dial(t *testing.T, server *httptest.Server, token string) (*websocket.Conn, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	if token != "" {
		wsURL += "?token=" + token
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	return conn, err
}

func issueToken(t *testing.T, tm *auth.TokenManager, role domain.Role) (string, *domain.User) {
	t.Helper()
	user := &domain.User{ID: uuid.New(), SchoolID: uuid.New(), Role: role}
	token, err := tm.GenerateToken(user)
	require.NoError(t, err)
	return token, user
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event map[string]any
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func TestWebSocketHandler_MissingTokenClosedWithAuthCode(t *testing.T) {
	server, _, _ := newGatewayServer(t)

	conn, err := dial(t, server, "")
	require.NoError(t, err, "upgrade succeeds; rejection arrives as a close frame")
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseAuthenticationFailed, closeErr.Code)
	assert.Equal(t, "Authentication required", closeErr.Text)
}

func TestWebSocketHandler_InvalidTokenClosedWithAuthCode(t *testing.T) {
	server, _, _ := newGatewayServer(t)

	conn, err := dial(t, server, "not-a-jwt")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseAuthenticationFailed, closeErr.Code)
	assert.Equal(t, "Invalid token", closeErr.Text)
}

func TestWebSocketHandler_ValidTokenReceivesConnectedAck(t *testing.T) {
	server, _, tm := newGatewayServer(t)
	token, user := issueToken(t, tm, domain.RoleStudent)

	conn, err := dial(t, server, token)
	require.NoError(t, err)
	defer conn.Close()

	event := readEvent(t, conn)
	assert.Equal(t, string(domain.EventConnected), event["type"])

	data, ok := event["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, user.ID.String(), data["userId"])
	assert.Equal(t, user.SchoolID.String(), data["schoolId"])
}

func TestWebSocketHandler_UpgradeSucceedsThroughMiddlewareChain(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()
	registry := wsAdapter.NewRegistry(wsAdapter.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		WriteWait:    cfg.WebSocket.WriteWait,
		SendBuffer:   cfg.WebSocket.SendBufferSize,
	}, logger)
	tm := auth.NewTokenManager("test-secret", time.Hour)
	handler := NewWebSocketHandler(registry, tm, cfg, logger)

	// Same chain the server mounts in front of /api/v1/ws: the logging
	// wrapper must still expose Hijack or the upgrade fails.
	router := chi.NewRouter()
	router.Use(mw.RequestID)
	router.Use(mw.RequestLogger(logger))
	router.Use(mw.RecoveryLogger(logger))
	router.Get("/api/v1/ws", handler.ServeHTTP)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	token, user := issueToken(t, tm, domain.RoleStudent)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws?token=" + token

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err, "upgrade must hijack through the logging wrapper")
	defer conn.Close()

	event := readEvent(t, conn)
	assert.Equal(t, string(domain.EventConnected), event["type"])

	data, ok := event["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, user.ID.String(), data["userId"])
}

func TestWebSocketHandler_BroadcastReachesConnectedClient(t *testing.T) {
	server, registry, tm := newGatewayServer(t)
	token, user := issueToken(t, tm, domain.RoleStudent)

	conn, err := dial(t, server, token)
	require.NoError(t, err)
	defer conn.Close()

	readEvent(t, conn) // connected ack

	registry.BroadcastToSchool(user.SchoolID.String(), domain.NewClassCreatedEvent(domain.ClassCreatedData{
		ClassID: "c1",
		Name:    "3-B",
	}))

	event := readEvent(t, conn)
	assert.Equal(t, string(domain.EventClassCreated), event["type"])
}

func TestWebSocketHandler_PingAnsweredWithPong(t *testing.T) {
	server, _, tm := newGatewayServer(t)
	token, _ := issueToken(t, tm, domain.RoleTeacher)

	conn, err := dial(t, server, token)
	require.NoError(t, err)
	defer conn.Close()

	readEvent(t, conn) // connected ack

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	event := readEvent(t, conn)
	assert.Equal(t, string(domain.EventPong), event["type"])
}

func TestWebSocketHandler_MalformedClientMessageDoesNotKillConnection(t *testing.T) {
	server, _, tm := newGatewayServer(t)
	token, _ := issueToken(t, tm, domain.RoleTeacher)

	conn, err := dial(t, server, token)
	require.NoError(t, err)
	defer conn.Close()

	readEvent(t, conn) // connected ack

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	event := readEvent(t, conn)
	assert.Equal(t, string(domain.EventPong), event["type"])
}
