// handlers_import.go - Bulk import handlers
package api

import (
	"net/http"

	"github.com/concept-importer/backend/internal/importer"
	"github.com/concept-importer/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// ImportHandlerImpl implements the ImportHandler interface
type ImportHandlerImpl struct {
	sessionMgr SessionManager
}

// NewImportHandler creates a new import handler instance
func NewImportHandler(sessionMgr SessionManager) ImportHandler {
	return &ImportHandlerImpl{sessionMgr: sessionMgr}
}

type startImportRequest struct {
	DictionaryURL string `json:"dictionaryUrl"`
	// ContainerURL is the list view the concepts were picked from.
	ContainerURL string `json:"containerUrl"`
	Concepts     []struct {
		ID        string `json:"id"`
		URL       string `json:"url"`
		SourceURL string `json:"sourceUrl"`
	} `json:"concepts"`
}

func (r startImportRequest) toRequest() importer.Request {
	req := importer.Request{
		ContainerURL:  r.ContainerURL,
		DictionaryURL: r.DictionaryURL,
		Concepts:      make([]models.ConceptRef, 0, len(r.Concepts)),
	}
	for _, c := range r.Concepts {
		req.Concepts = append(req.Concepts, models.ConceptRef{ID: c.ID, URL: c.URL, SourceURL: c.SourceURL})
	}
	return req
}

type startImportResponse struct {
	Index       int    `json:"index"`
	OperationID string `json:"operationId"`
	Label       string `json:"label"`
	SessionID   string `json:"sessionId"`
}

// HandleStartImport dispatches a bulk add-to-dictionary invocation. It
// answers as soon as the slot exists; the import runs in the background.
func (h *ImportHandlerImpl) HandleStartImport(c echo.Context) error {
	var body startImportRequest
	if err := c.Bind(&body); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if body.DictionaryURL == "" {
		return NewValidationError("dictionaryUrl")
	}
	if len(body.Concepts) == 0 {
		return NewValidationError("concepts")
	}

	state, err := resolveSession(h.sessionMgr, c)
	if err != nil {
		return err
	}

	slot, err := state.Importer.Start(c.Request().Context(), body.toRequest())
	if err != nil {
		return fromDomainError(err)
	}

	return c.JSON(http.StatusAccepted, startImportResponse{
		Index:       slot.Index,
		OperationID: slot.ID,
		Label:       slot.Label,
		SessionID:   state.ID,
	})
}
