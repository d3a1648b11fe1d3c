package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/concept-importer/backend/internal/importer"
	"github.com/concept-importer/backend/internal/notification"
	"github.com/concept-importer/backend/internal/ocl"
	"github.com/concept-importer/backend/internal/session"
	"github.com/concept-importer/backend/internal/testutil"
	"github.com/concept-importer/backend/internal/tracker"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type testServer struct {
	e    *echo.Echo
	mgr  *session.Manager
	mock *testutil.MockConceptAPI
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mock := testutil.NewMockConceptAPI()
	mgr := session.NewManager(mock, nil, session.Options{})
	t.Cleanup(mgr.Close)

	e := echo.New()
	SetupMiddleware(e)
	RegisterRoutes(e, NewHandlers(&Dependencies{
		SessionMgr:  mgr,
		Version:     "test",
		RowsPerPage: 10,
	}))

	return &testServer{e: e, mgr: mgr, mock: mock}
}

func (s *testServer) do(t *testing.T, method, target, sessionID string, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) wait(t *testing.T, sessionID string) {
	t.Helper()
	state, err := s.mgr.Get(sessionID)
	require.NoError(t, err)
	state.Importer.Wait()
}

func importBody(ids ...string) string {
	concepts := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		concepts = append(concepts, map[string]string{"id": id, "url": testutil.ConceptURL(id)})
	}
	body, _ := json.Marshal(map[string]interface{}{
		"dictionaryUrl":      testutil.DictionaryURL,
		"targetDictionaryId": "testDictionary",
		"containerUrl":       testutil.SourceURL + "concepts/",
		"concepts":           concepts,
	})
	return string(body)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}

func TestCreateAndDeleteSession(t *testing.T) {
	s := newTestServer(t)
	s.mock.AddConcept("A")

	rec := s.do(t, http.MethodPost, "/api/sessions", "", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NoError(t, session.ValidateID(created.SessionID))
	assert.NotEqual(t, session.DefaultID, created.SessionID)

	s.mock.Gate = make(chan struct{})
	rec = s.do(t, http.MethodPost, "/api/imports", created.SessionID, importBody("A"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/sessions/"+created.SessionID, "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(s.mock.Gate)
	s.wait(t, created.SessionID)

	rec = s.do(t, http.MethodDelete, "/api/sessions/"+created.SessionID, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/sessions/"+created.SessionID, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/sessions/bad%20id", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartImport_ThenListNotifications(t *testing.T) {
	s := newTestServer(t)
	s.mock.AddConcept("A", "B")
	s.mock.AddConcept("B")

	rec := s.do(t, http.MethodPost, "/api/imports", "", importBody("A"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started startImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, 0, started.Index)
	assert.NotEmpty(t, started.OperationID)
	assert.Equal(t, "Adding to testDictionary--1 concept from CIEL", started.Label)
	assert.Equal(t, session.DefaultID, started.SessionID)

	s.wait(t, session.DefaultID)
	assert.Equal(t, []string{"B", "A"}, s.mock.AddedIDs())

	rec = s.do(t, http.MethodGet, "/api/notifications", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var progress progressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.Empty(t, progress.InProgress)
	assert.Empty(t, progress.Failed)
	require.Len(t, progress.Completed, 1)
	assert.Equal(t, "Adding to testDictionary", progress.Completed[0].Header)
	assert.Equal(t, "Added 2 of 2 concepts", progress.Completed[0].Subheader)
	assert.Equal(t, "testDictionary", progress.Completed[0].DictionaryName)
	assert.Empty(t, progress.Message)
}

func TestListNotifications_Empty(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/notifications", "fresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), notification.EmptyMessage)
}

func TestStartImport_Validation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/imports", "", `{"concepts":[{"id":"A"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "dictionaryUrl")

	rec = s.do(t, http.MethodPost, "/api/imports", "", `{"dictionaryUrl":"/users/u/collections/D/","concepts":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

	rec = s.do(t, http.MethodPost, "/api/imports", "", `{"dictionaryUrl":"/users/u/collections/D/","concepts":[{"id":"A"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/imports", "not a valid id", importBody("A"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartImport_RequestFailureIsFailedNotification(t *testing.T) {
	s := newTestServer(t)
	s.mock.AddConcept("A")
	s.mock.ListErr = errors.New("401 Unauthorized: not authorized")

	rec := s.do(t, http.MethodPost, "/api/imports", "", importBody("A"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.wait(t, session.DefaultID)

	rec = s.do(t, http.MethodGet, "/api/notifications", "", "")
	var progress progressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	require.Len(t, progress.Failed, 1)
	assert.Equal(t, "401 Unauthorized: not authorized", progress.Failed[0].Subheader)

	// A failed notification has no summary.
	rec = s.do(t, http.MethodGet, "/api/notifications/0/summary", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionsAreIsolated(t *testing.T) {
	s := newTestServer(t)
	s.mock.AddConcept("A")

	rec := s.do(t, http.MethodPost, "/api/imports", "alice", importBody("A"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.wait(t, "alice")

	rec = s.do(t, http.MethodGet, "/api/notifications/0", "bob", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/notifications/0", "alice", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"succeeded"`)
}

func TestGetNotification_BadIndex(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/notifications/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/notifications/7", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func startAndSettle(t *testing.T, s *testServer) {
	t.Helper()
	s.mock.AddConcept("A", "C")
	s.mock.AddConcept("B")
	s.mock.AddConcept("C")
	s.mock.AddReference(testutil.DictionaryURL, testutil.ConceptURL("B"))

	rec := s.do(t, http.MethodPost, "/api/imports", "", importBody("A", "B"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.wait(t, session.DefaultID)
}

func TestGetSummary(t *testing.T) {
	s := newTestServer(t)
	startAndSettle(t, s)

	rec := s.do(t, http.MethodGet, "/api/notifications/0/summary", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page notification.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, "testDictionary - Adding concepts from CIEL", page.Title)
	assert.Equal(t, notification.ColumnStatus, page.OrderBy)
	assert.Equal(t, notification.Desc, page.Order)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Rows, 3)

	// Skipped sorts above Imported; ties keep discovery order C, A.
	assert.Equal(t, "B", page.Rows[0].ConceptID)
	assert.Equal(t, notification.StatusSkipped, page.Rows[0].Status)
	assert.Equal(t, "Concept already exists", page.Rows[0].Reasons)
	assert.Equal(t, "C", page.Rows[1].ConceptID)
	assert.Equal(t, notification.TypeDependent, page.Rows[1].ConceptType)
	assert.Equal(t, "A", page.Rows[2].ConceptID)
	assert.Equal(t, notification.TypeParent, page.Rows[2].ConceptType)
	assert.Equal(t, 3, page.Rows[2].Number)

	rec = s.do(t, http.MethodGet, "/api/notifications/0/summary?orderBy=conceptId&order=asc&rowsPerPage=5&page=0", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 5, page.RowsPerPage)
	assert.Equal(t, "A", page.Rows[0].ConceptID)

	rec = s.do(t, http.MethodGet, "/api/notifications/0/summary?rowsPerPage=7", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/notifications/0/summary?orderBy=colour", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSummaryMsgpack(t *testing.T) {
	s := newTestServer(t)
	startAndSettle(t, s)

	rec := s.do(t, http.MethodGet, "/api/notifications/0/summary/msgpack", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	var page notification.Page
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, "B", page.Rows[0].ConceptID)
}

func TestExportSummaryCSV(t *testing.T) {
	s := newTestServer(t)
	startAndSettle(t, s)

	rec := s.do(t, http.MethodGet, "/api/notifications/0/summary/csv?orderBy=conceptId&order=asc", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "testDictionary_-_Adding_concepts_from_CIEL.csv")

	records, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"1", "A", "Parent", "Imported", "Added"}, records[1])
}

func TestDeleteNotification(t *testing.T) {
	s := newTestServer(t)
	s.mock.AddConcept("A")
	s.mock.Gate = make(chan struct{})

	rec := s.do(t, http.MethodPost, "/api/imports", "", importBody("A"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/notifications/0", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(s.mock.Gate)
	s.wait(t, session.DefaultID)

	rec = s.do(t, http.MethodDelete, "/api/notifications/0", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/notifications/0", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The index is never reused.
	rec = s.do(t, http.MethodPost, "/api/imports", "", importBody("A"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"index":1`)
	s.wait(t, session.DefaultID)
}

func TestProgressStream(t *testing.T) {
	s := newTestServer(t)
	s.mock.AddConcept("A")
	s.mock.Gate = make(chan struct{})

	rec := s.do(t, http.MethodPost, "/api/imports", "", importBody("A"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- s.do(t, http.MethodGet, "/api/notifications/0/progress", "", "")
	}()

	time.Sleep(50 * time.Millisecond)
	close(s.mock.Gate)

	var stream *httptest.ResponseRecorder
	select {
	case stream = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("progress stream did not finish")
	}

	assert.Equal(t, "text/event-stream", stream.Header().Get("Content-Type"))
	events := strings.Split(strings.TrimSpace(stream.Body.String()), "\n\n")
	require.Len(t, events, 2)
	assert.Contains(t, events[0], `"state":"loading"`)
	assert.Contains(t, events[1], `"state":"succeeded"`)
}

func TestProgressStream_OutlivesServerWriteTimeout(t *testing.T) {
	s := newTestServer(t)
	s.mock.AddConcept("A")
	s.mock.Gate = make(chan struct{})

	rec := s.do(t, http.MethodPost, "/api/imports", "", importBody("A"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	srv := httptest.NewUnstartedServer(s.e)
	srv.Config.WriteTimeout = 100 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/notifications/0/progress")
	require.NoError(t, err)
	defer resp.Body.Close()

	time.Sleep(300 * time.Millisecond)
	close(s.mock.Gate)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"state":"loading"`)
	assert.Contains(t, string(body), `"state":"succeeded"`)
}

func TestProgressStream_SettledSendsOnce(t *testing.T) {
	s := newTestServer(t)
	s.mock.AddConcept("A")

	s.do(t, http.MethodPost, "/api/imports", "", importBody("A"))
	s.wait(t, session.DefaultID)

	rec := s.do(t, http.MethodGet, "/api/notifications/0/progress", "", "")
	events := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.Len(t, events, 1)
	assert.Contains(t, events[0], `"state":"succeeded"`)
}

func TestFromDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid session", session.ErrInvalidID, http.StatusBadRequest, "BAD_REQUEST"},
		{"too many sessions", session.ErrTooMany, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"no concepts", importer.ErrNoConcepts, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"slot not found", tracker.ErrSlotNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"session not found", session.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"not settled", notification.ErrNotSettled, http.StatusConflict, "CONFLICT"},
		{"session busy", session.ErrBusy, http.StatusConflict, "CONFLICT"},
		{"bad page size", notification.ErrInvalidPerPage, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"anything else", ocl.ErrNotFound, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := fromDomainError(fmt.Errorf("wrapped: %w", tt.err))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestErrorHandler(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	ErrorHandler(NewNotFoundError("notification", "3"), e.NewContext(req, rec))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"notification not found: 3"`)

	rec = httptest.NewRecorder()
	ErrorHandler(errors.New("boom"), e.NewContext(req, rec))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNKNOWN_ERROR")
}
