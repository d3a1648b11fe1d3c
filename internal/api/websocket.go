package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/concept-importer/backend/internal/importer"
	"github.com/concept-importer/backend/internal/models"
	"github.com/concept-importer/backend/internal/tracker"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types for the notification feed
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected    = "connected"
	MsgTypeNotification = "notification"
	MsgTypeRefresh      = "refresh"
	MsgTypeError        = "error"
	MsgTypePong         = "pong"
)

// clientSendBuffer is how many messages may queue for one slow client.
const clientSendBuffer = 64

// WSMessage is the envelope of every WebSocket frame.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSRefreshPayload asks the client to reload the list an import drew from.
type WSRefreshPayload struct {
	ContainerURL  string `json:"containerUrl,omitempty"`
	DictionaryURL string `json:"dictionaryUrl"`
	Index         int    `json:"index"`
}

// WebSocket error response
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type wsClient struct {
	sessionID string
	send      chan WSMessage
}

// WebSocketHandler pushes tracker events and refresh requests to the
// connected clients of each session.
type WebSocketHandler struct {
	sessionMgr SessionManager
	upgrader   websocket.Upgrader
	maxMessage int64
	clients    map[string]map[*wsClient]struct{}
	clientsMu  sync.RWMutex
}

// NewWebSocketHandler creates a new WebSocket notification handler.
// maxMessageKB limits inbound frames; 0 keeps the default.
func NewWebSocketHandler(sessionMgr SessionManager, maxMessageKB int) *WebSocketHandler {
	if maxMessageKB <= 0 {
		maxMessageKB = 64
	}
	return &WebSocketHandler{
		sessionMgr: sessionMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		maxMessage: int64(maxMessageKB) * 1024,
		clients:    make(map[string]map[*wsClient]struct{}),
	}
}

// HandleWebSocket upgrades the connection and streams the session's
// notifications until the client goes away.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	state, err := resolveSession(wsh.sessionMgr, c)
	if err != nil {
		return err
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(wsh.maxMessage)

	client := &wsClient{sessionID: state.ID, send: make(chan WSMessage, clientSendBuffer)}
	wsh.register(client)
	defer wsh.unregister(client)

	events, cancel := state.Tracker.Subscribe()
	defer cancel()

	fmt.Printf("[WebSocket] Client connected to session %s\n", shortID(state.ID))

	done := make(chan struct{})
	go wsh.writeLoop(ws, client, events, done)

	client.push(WSMessage{Type: MsgTypeConnected, ID: state.ID, Timestamp: time.Now().UnixMilli()})

	// Main message loop
	for {
		var msg WSMessage
		err := ws.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("[WebSocket] Connection error: %v\n", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			// Respond with pong to keep connection alive
			wsh.sessionMgr.TouchSession(state.ID)
			client.push(WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		default:
			client.push(errorMessage("Unknown message type: "+msg.Type, "INVALID_TYPE"))
		}
	}

	close(done)
	fmt.Printf("[WebSocket] Client disconnected from session %s\n", shortID(state.ID))
	return nil
}

// writeLoop is the only writer of ws.
func (wsh *WebSocketHandler) writeLoop(ws *websocket.Conn, client *wsClient, events <-chan tracker.Event, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			wsh.sendMessage(ws, WSMessage{
				Type:      MsgTypeNotification,
				ID:        evt.Slot.ID,
				Payload:   mustJSON(evt),
				Timestamp: time.Now().UnixMilli(),
			})
		case msg := <-client.send:
			wsh.sendMessage(ws, msg)
		}
	}
}

func (wsh *WebSocketHandler) register(client *wsClient) {
	wsh.clientsMu.Lock()
	defer wsh.clientsMu.Unlock()

	set, ok := wsh.clients[client.sessionID]
	if !ok {
		set = make(map[*wsClient]struct{})
		wsh.clients[client.sessionID] = set
	}
	set[client] = struct{}{}
}

func (wsh *WebSocketHandler) unregister(client *wsClient) {
	wsh.clientsMu.Lock()
	defer wsh.clientsMu.Unlock()

	set := wsh.clients[client.sessionID]
	delete(set, client)
	if len(set) == 0 {
		delete(wsh.clients, client.sessionID)
	}
}

// ClientCount returns the number of clients connected to a session.
func (wsh *WebSocketHandler) ClientCount(sessionID string) int {
	wsh.clientsMu.RLock()
	defer wsh.clientsMu.RUnlock()
	return len(wsh.clients[sessionID])
}

// Broadcast queues msg for every client of a session.
func (wsh *WebSocketHandler) Broadcast(sessionID string, msg WSMessage) {
	wsh.clientsMu.RLock()
	defer wsh.clientsMu.RUnlock()

	for client := range wsh.clients[sessionID] {
		client.push(msg)
	}
}

// NotifyRefresh tells a session's clients that an import finished, so
// the list it drew from and the target dictionary can be reloaded. It is
// meant to be installed as the session manager's completion hook.
func (wsh *WebSocketHandler) NotifyRefresh(sessionID string, req importer.Request, slot models.Slot) {
	wsh.Broadcast(sessionID, WSMessage{
		Type: MsgTypeRefresh,
		ID:   slot.ID,
		Payload: mustJSON(WSRefreshPayload{
			ContainerURL:  req.ContainerURL,
			DictionaryURL: req.DictionaryURL,
			Index:         slot.Index,
		}),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (client *wsClient) push(msg WSMessage) {
	select {
	case client.send <- msg:
	default:
		fmt.Printf("[WebSocket] Client of session %s is full, dropping %s message\n", shortID(client.sessionID), msg.Type)
	}
}

// Helper methods

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) {
	if err := ws.WriteJSON(msg); err != nil {
		fmt.Printf("[WebSocket] Failed to send message: %v\n", err)
	}
}

func errorMessage(message, code string) WSMessage {
	return WSMessage{
		Type:      MsgTypeError,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSErrorResponse{
			Type:    MsgTypeError,
			Message: message,
			Code:    code,
		}),
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
