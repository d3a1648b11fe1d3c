package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/concept-importer/backend/internal/importer"
	"github.com/concept-importer/backend/internal/models"
	"github.com/concept-importer/backend/internal/session"
	"github.com/concept-importer/backend/internal/testutil"
	"github.com/concept-importer/backend/internal/tracker"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocket_PushesNotificationsAndRefresh(t *testing.T) {
	mock := testutil.NewMockConceptAPI()
	mock.AddConcept("A")

	var wsHandler *WebSocketHandler
	mgr := session.NewManager(mock, nil, session.Options{
		OnComplete: func(sessionID string, req importer.Request, slot models.Slot) {
			wsHandler.NotifyRefresh(sessionID, req, slot)
		},
	})
	t.Cleanup(mgr.Close)

	handlers := NewHandlers(&Dependencies{SessionMgr: mgr, Version: "test"})
	wsHandler = handlers.WebSocket

	e := echo.New()
	SetupMiddleware(e)
	RegisterRoutes(e, handlers)
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/notifications?session=ws1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MsgTypeConnected, msg.Type)
	assert.Equal(t, "ws1", msg.ID)
	assert.Equal(t, 1, wsHandler.ClientCount("ws1"))

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypePing}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MsgTypePong, msg.Type)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/imports", strings.NewReader(importBody("A")))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(SessionHeader, "ws1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var types []tracker.EventType
	var refresh *WSRefreshPayload
	for refresh == nil || len(types) < 2 {
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg.Type {
		case MsgTypeNotification:
			var evt tracker.Event
			require.NoError(t, json.Unmarshal(msg.Payload, &evt))
			types = append(types, evt.Type)
		case MsgTypeRefresh:
			refresh = &WSRefreshPayload{}
			require.NoError(t, json.Unmarshal(msg.Payload, refresh))
		}
	}

	assert.Equal(t, []tracker.EventType{tracker.EventStarted, tracker.EventSucceeded}, types)
	assert.Equal(t, testutil.SourceURL+"concepts/", refresh.ContainerURL)
	assert.Equal(t, testutil.DictionaryURL, refresh.DictionaryURL)
	assert.Equal(t, 0, refresh.Index)
}

func TestWebSocket_UnknownMessage(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/notifications"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, session.DefaultID, msg.ID)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "import:start"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.Contains(t, string(msg.Payload), "INVALID_TYPE")
}
