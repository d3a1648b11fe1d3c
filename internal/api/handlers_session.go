package api

import (
	"net/http"

	"github.com/concept-importer/backend/internal/session"
	"github.com/labstack/echo/v4"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessionMgr SessionManager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionMgr SessionManager) SessionHandler {
	return &SessionHandlerImpl{sessionMgr: sessionMgr}
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

// HandleCreateSession allocates a fresh session so a browser tab gets its
// own notification history.
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	state, err := h.sessionMgr.Get(session.NewID())
	if err != nil {
		return fromDomainError(err)
	}
	return c.JSON(http.StatusCreated, sessionResponse{SessionID: state.ID})
}

// HandleDeleteSession drops a session and its stored history. Sessions with
// imports still running are refused.
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := session.ValidateID(id); err != nil {
		return fromDomainError(err)
	}
	if err := h.sessionMgr.Delete(id); err != nil {
		return fromDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
