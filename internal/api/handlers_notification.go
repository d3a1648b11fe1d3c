// handlers_notification.go - Progress overview and operation detail handlers
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/concept-importer/backend/internal/models"
	"github.com/concept-importer/backend/internal/notification"
	"github.com/concept-importer/backend/internal/session"
	"github.com/concept-importer/backend/internal/tracker"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// progressStreamTimeout bounds a single SSE progress stream.
const progressStreamTimeout = 10 * time.Minute

// NotificationHandlerImpl implements the NotificationHandler interface
type NotificationHandlerImpl struct {
	sessionMgr  SessionManager
	rowsPerPage int
	now         func() time.Time
}

// NewNotificationHandler creates a new notification handler instance.
// rowsPerPage is used when a summary request names no page size.
func NewNotificationHandler(sessionMgr SessionManager, rowsPerPage int) NotificationHandler {
	if !notification.ValidRowsPerPage(rowsPerPage) {
		rowsPerPage = notification.DefaultRowsPerPage
	}
	return &NotificationHandlerImpl{
		sessionMgr:  sessionMgr,
		rowsPerPage: rowsPerPage,
		now:         time.Now,
	}
}

type progressResponse struct {
	notification.Progress
	Message string `json:"message,omitempty"`
}

// HandleListNotifications returns the progress overview of the session,
// read back from its log so it matches what a reload would show.
func (h *NotificationHandlerImpl) HandleListNotifications(c echo.Context) error {
	state, err := resolveSession(h.sessionMgr, c)
	if err != nil {
		return err
	}

	lists := tracker.ReadLists(state.Log)
	if lists.Len() < state.Tracker.Len() {
		// The log dropped writes (quota); fall back to live state.
		lists = tracker.FromSlots(state.Tracker.Snapshot())
	}

	progress := notification.BuildProgress(lists, h.now())
	return c.JSON(http.StatusOK, progressResponse{
		Progress: progress,
		Message:  progress.Message(),
	})
}

// HandleGetNotification returns one slot
func (h *NotificationHandlerImpl) HandleGetNotification(c echo.Context) error {
	state, slot, err := h.lookupSlot(c)
	if err != nil {
		return err
	}

	h.sessionMgr.TouchSession(state.ID)
	return c.JSON(http.StatusOK, slot)
}

// HandleGetSummary returns one page of the classified result table
func (h *NotificationHandlerImpl) HandleGetSummary(c echo.Context) error {
	page, err := h.summaryPage(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// HandleGetSummaryMsgpack returns the same page in MessagePack format
func (h *NotificationHandlerImpl) HandleGetSummaryMsgpack(c echo.Context) error {
	page, err := h.summaryPage(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(page)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleExportSummaryCSV downloads every row of the table in its current
// sort order.
func (h *NotificationHandlerImpl) HandleExportSummaryCSV(c echo.Context) error {
	view, err := h.openView(c)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := notification.ExportCSV(&buf, view.Sorted()); err != nil {
		return NewInternalError("failed to export csv", err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", csvFileName(view.Title())))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// HandleDeleteNotification clears a settled slot from the history
func (h *NotificationHandlerImpl) HandleDeleteNotification(c echo.Context) error {
	state, slot, err := h.lookupSlot(c)
	if err != nil {
		return err
	}
	if slot.State == models.SlotLoading {
		return NewConflictError("import is still running")
	}

	if err := state.Tracker.Remove(slot.Index); err != nil {
		return fromDomainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleProgressStream streams a slot via SSE until it settles
func (h *NotificationHandlerImpl) HandleProgressStream(c echo.Context) error {
	state, slot, err := h.lookupSlot(c)
	if err != nil {
		return err
	}

	clearWriteDeadline(c)

	// Subscribe before sending the initial state so no transition is missed.
	events, cancel := state.Tracker.Subscribe()
	defer cancel()

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	// Re-read: the slot may have settled between lookup and subscribe.
	if current, ok := state.Tracker.Slot(slot.Index); ok {
		slot = current
	}
	sendSSEData(c, slot)
	if slot.State != models.SlotLoading {
		return nil
	}

	timeout := time.NewTimer(progressStreamTimeout)
	defer timeout.Stop()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if evt.Slot.Index != slot.Index {
				continue
			}
			h.sessionMgr.TouchSession(state.ID)
			sendSSEData(c, evt.Slot)
			if evt.Slot.State != models.SlotLoading {
				return nil
			}

		case <-timeout.C:
			sendSSEError(c, "stream timeout")
			return nil

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

func (h *NotificationHandlerImpl) lookupSlot(c echo.Context) (*session.SessionState, models.Slot, error) {
	raw := c.Param("index")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return nil, models.Slot{}, NewValidationError("index")
	}

	state, err := resolveSession(h.sessionMgr, c)
	if err != nil {
		return nil, models.Slot{}, err
	}

	slot, ok := state.Tracker.Slot(index)
	if !ok || slot.State == models.SlotEmpty {
		return nil, models.Slot{}, NewNotFoundError("notification", raw)
	}
	return state, slot, nil
}

// openView opens a detail view on the slot and applies the sort and page
// query parameters.
func (h *NotificationHandlerImpl) openView(c echo.Context) (*notification.DetailView, error) {
	state, slot, err := h.lookupSlot(c)
	if err != nil {
		return nil, err
	}
	h.sessionMgr.TouchSession(state.ID)

	view := notification.NewDetailView()
	if err := view.Open(slot); err != nil {
		return nil, fromDomainError(err)
	}

	if orderBy := c.QueryParam("orderBy"); orderBy != "" || c.QueryParam("order") != "" {
		if orderBy == "" {
			orderBy = notification.DefaultColumn
		}
		order, err := notification.ParseOrder(c.QueryParam("order"))
		if err != nil {
			return nil, fromDomainError(err)
		}
		if err := view.SetSort(orderBy, order); err != nil {
			return nil, fromDomainError(err)
		}
	}

	rowsPerPage := h.rowsPerPage
	if raw := c.QueryParam("rowsPerPage"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, NewValidationError("rowsPerPage")
		}
		rowsPerPage = n
	}
	if err := view.SetRowsPerPage(rowsPerPage); err != nil {
		return nil, fromDomainError(err)
	}

	if raw := c.QueryParam("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return nil, NewValidationError("page")
		}
		if err := view.SetPage(page); err != nil {
			return nil, fromDomainError(err)
		}
	}
	return view, nil
}

func (h *NotificationHandlerImpl) summaryPage(c echo.Context) (notification.Page, error) {
	view, err := h.openView(c)
	if err != nil {
		return notification.Page{}, err
	}
	page, err := view.Current()
	if err != nil {
		return notification.Page{}, fromDomainError(err)
	}
	return page, nil
}

func csvFileName(title string) string {
	name := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			name = append(name, r)
		case r == ' ':
			name = append(name, '_')
		}
	}
	if len(name) == 0 {
		return "summary.csv"
	}
	return string(name) + ".csv"
}

// clearWriteDeadline lifts the server write timeout for a long-lived stream.
func clearWriteDeadline(c echo.Context) {
	err := http.NewResponseController(c.Response().Writer).SetWriteDeadline(time.Time{})
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		fmt.Printf("[SSE] Failed to clear write deadline: %v\n", err)
	}
}

func sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func sendSSEError(c echo.Context, message string) {
	sendSSEData(c, map[string]string{"error": message})
}
