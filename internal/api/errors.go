package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/concept-importer/backend/internal/importer"
	"github.com/concept-importer/backend/internal/notification"
	"github.com/concept-importer/backend/internal/session"
	"github.com/concept-importer/backend/internal/tracker"
	"github.com/labstack/echo/v4"
)

// ShowErrorDetails includes the cause of unexpected errors in responses.
var ShowErrorDetails = true

// APIError is the JSON error body every endpoint returns.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newAPIError(status int, code, message string, cause error) *APIError {
	err := &APIError{Status: status, Code: code, Message: message}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewBadRequestError is a 400 carrying the cause as details.
func NewBadRequestError(message string, cause error) *APIError {
	return newAPIError(http.StatusBadRequest, "BAD_REQUEST", message, cause)
}

// NewValidationError is a 400 naming the offending field.
func NewValidationError(field string) *APIError {
	return newAPIError(http.StatusBadRequest, "VALIDATION_ERROR", "validation failed for field: "+field, nil)
}

// NewNotFoundError is a 404 for resource id.
func NewNotFoundError(resource string, id string) *APIError {
	return newAPIError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found: %s", resource, id), nil)
}

func NewConflictError(message string) *APIError {
	return newAPIError(http.StatusConflict, "CONFLICT", message, nil)
}

func NewInternalError(message string, cause error) *APIError {
	return newAPIError(http.StatusInternalServerError, "INTERNAL_ERROR", message, cause)
}

func NewServiceUnavailableError(message string) *APIError {
	return newAPIError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, nil)
}

// fromDomainError maps the sentinel errors of the domain packages onto
// API errors.
func fromDomainError(err error) *APIError {
	switch {
	case errors.Is(err, session.ErrInvalidID):
		return NewBadRequestError("invalid session id", err)
	case errors.Is(err, session.ErrTooMany):
		return NewServiceUnavailableError(err.Error())
	case errors.Is(err, importer.ErrNoConcepts):
		return NewValidationError("concepts")
	case errors.Is(err, importer.ErrNoDictionary):
		return NewValidationError("dictionaryUrl")
	case errors.Is(err, importer.ErrMissingConcept):
		return NewBadRequestError("invalid concept", err)
	case errors.Is(err, tracker.ErrSlotNotFound), errors.Is(err, tracker.ErrInvalidIndex), errors.Is(err, session.ErrNotFound):
		return newAPIError(http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, notification.ErrNotSettled), errors.Is(err, session.ErrBusy):
		return NewConflictError(err.Error())
	case errors.Is(err, notification.ErrInvalidColumn):
		return NewValidationError("orderBy")
	case errors.Is(err, notification.ErrInvalidOrder):
		return NewValidationError("order")
	case errors.Is(err, notification.ErrInvalidPage):
		return NewValidationError("page")
	case errors.Is(err, notification.ErrInvalidPerPage):
		return NewValidationError("rowsPerPage")
	}
	return NewInternalError("unexpected error", err)
}

// ErrorHandler renders any handler error as an APIError JSON body.
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = newAPIError(httpErr.Code, "HTTP_ERROR", fmt.Sprintf("%v", httpErr.Message), nil)
	default:
		apiErr = newAPIError(http.StatusInternalServerError, "UNKNOWN_ERROR", "An unexpected error occurred", err)
	}

	body := *apiErr
	if !ShowErrorDetails && body.Status >= http.StatusInternalServerError {
		body.Details = ""
	}
	c.JSON(body.Status, body)
}
