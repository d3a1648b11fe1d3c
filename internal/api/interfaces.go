package api

import (
	"github.com/concept-importer/backend/internal/session"
	"github.com/labstack/echo/v4"
)

// ImportHandler starts bulk imports
type ImportHandler interface {
	HandleStartImport(c echo.Context) error
}

// NotificationHandler serves the progress overview and operation details
type NotificationHandler interface {
	HandleListNotifications(c echo.Context) error
	HandleGetNotification(c echo.Context) error
	HandleGetSummary(c echo.Context) error
	HandleGetSummaryMsgpack(c echo.Context) error
	HandleExportSummaryCSV(c echo.Context) error
	HandleDeleteNotification(c echo.Context) error
	HandleProgressStream(c echo.Context) error
}

// SessionHandler creates and deletes sessions
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Get(id string) (*session.SessionState, error)
	Delete(id string) error
	TouchSession(id string) bool
	Count() int
	InFlight() int
}

// SessionHeader carries the browser session id on every request.
const SessionHeader = "X-Session-ID"

// sessionID reads the session id from the header, or the "session" query
// parameter for clients (EventSource, WebSocket) that cannot set headers.
func sessionID(c echo.Context) string {
	if id := c.Request().Header.Get(SessionHeader); id != "" {
		return id
	}
	if id := c.QueryParam("session"); id != "" {
		return id
	}
	return session.DefaultID
}

// resolveSession loads the request's session.
func resolveSession(mgr SessionManager, c echo.Context) (*session.SessionState, error) {
	state, err := mgr.Get(sessionID(c))
	if err != nil {
		return nil, fromDomainError(err)
	}
	return state, nil
}
