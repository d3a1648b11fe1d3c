package notification

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/concept-importer/backend/internal/models"
	"github.com/concept-importer/backend/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dictURL = "/users/u/collections/D/"

func row(id string, added bool, msg models.Reason) models.ConceptResultRow {
	return models.ConceptResultRow{
		Expression: "/orgs/CIEL/sources/CIEL/concepts/" + id + "/",
		Added:      added,
		Message:    msg,
	}
}

func classificationFixture() ([]models.ConceptResultRow, *models.RequestMeta) {
	meta := models.NewRequestMeta(dictURL, []models.ConceptRef{{ID: "C1"}, {ID: "C2"}})
	rows := []models.ConceptResultRow{
		row("C1", true, models.SingleReason("ok")),
		row("C2", false, models.SingleReason("conflict")),
		row("C3", true, models.SingleReason("ok")),
	}
	return rows, meta
}

func TestSummarize_Classification(t *testing.T) {
	rows, meta := classificationFixture()

	got := Summarize(rows, meta)
	assert.Equal(t, []SummaryRow{
		{ConceptID: "C1", ConceptType: TypeParent, Status: StatusImported, Reasons: "ok"},
		{ConceptID: "C2", ConceptType: TypeParent, Status: StatusSkipped, Reasons: "conflict"},
		{ConceptID: "C3", ConceptType: TypeDependent, Status: StatusImported, Reasons: "ok"},
	}, got)
}

func TestSummarize_DropsNonConceptRowsAndJoinsReasons(t *testing.T) {
	rows := []models.ConceptResultRow{
		{Expression: "/orgs/CIEL/sources/CIEL/mappings/M1/", Added: true},
		row("C1", false, models.MultipleReason("Concept", "already", "exists")),
	}

	got := Summarize(rows, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "Concept already exists", got[0].Reasons)
	assert.Equal(t, TypeDependent, got[0].ConceptType)
}

func TestSortRows_StableAndIdempotent(t *testing.T) {
	rows := []SummaryRow{
		{ConceptID: "a", Status: StatusImported},
		{ConceptID: "b", Status: StatusSkipped},
		{ConceptID: "c", Status: StatusImported},
		{ConceptID: "d", Status: StatusSkipped},
	}

	once := SortRows(rows, ColumnStatus, Desc)
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids(once))

	twice := SortRows(once, ColumnStatus, Desc)
	assert.Equal(t, once, twice)

	asc := SortRows(rows, ColumnStatus, Asc)
	assert.Equal(t, []string{"a", "c", "b", "d"}, ids(asc))

	// Input is left untouched.
	assert.Equal(t, "a", rows[0].ConceptID)
}

func ids(rows []SummaryRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ConceptID
	}
	return out
}

func TestPaginate_Boundaries(t *testing.T) {
	rows := SortRows([]SummaryRow{
		{ConceptID: "1", Status: StatusSkipped},
		{ConceptID: "2", Status: StatusImported},
		{ConceptID: "3", Status: StatusSkipped},
		{ConceptID: "4", Status: StatusImported},
	}, ColumnStatus, Desc)

	all := Paginate(rows, 0, 10)
	assert.Equal(t, rows, all)
	assert.Equal(t, 1, PageCount(len(rows), 10))

	assert.Equal(t, rows[0:2], Paginate(rows, 0, 2))
	assert.Equal(t, rows[2:4], Paginate(rows, 1, 2))
	assert.Empty(t, Paginate(rows, 2, 2))
	assert.Empty(t, Paginate(rows, -1, 2))
	assert.Equal(t, 2, PageCount(len(rows), 2))
}

func TestTitle(t *testing.T) {
	meta := models.NewRequestMeta("/users/testUser/collections/testDictionary/", nil)
	rows := []models.ConceptResultRow{row("C1", true, models.SingleReason("ok"))}

	assert.Equal(t, "testDictionary - Adding concepts from CIEL", Title(meta, rows))
	assert.Equal(t, " - Adding concepts from ", Title(nil, nil))
}

func TestDetailView_Lifecycle(t *testing.T) {
	rows, meta := classificationFixture()
	slot := models.Slot{
		Index:  3,
		State:  models.SlotSucceeded,
		Result: &models.ImportResult{Payload: rows, Meta: meta},
	}

	v := NewDetailView()
	assert.False(t, v.IsOpen())
	_, err := v.Current()
	assert.ErrorIs(t, err, ErrViewClosed)

	require.NoError(t, v.Open(slot))
	page, err := v.Current()
	require.NoError(t, err)
	assert.Equal(t, ColumnStatus, page.OrderBy)
	assert.Equal(t, Desc, page.Order)
	assert.Equal(t, DefaultRowsPerPage, page.RowsPerPage)
	assert.Equal(t, "D - Adding concepts from CIEL", page.Title)
	assert.Equal(t, []string{"C2", "C1", "C3"}, pageIDs(page))
	assert.Equal(t, 1, page.Rows[0].Number)

	// First request on a new column sorts ascending, the second flips it.
	require.NoError(t, v.RequestSort(ColumnConceptID))
	page, _ = v.Current()
	assert.Equal(t, Asc, page.Order)
	assert.Equal(t, []string{"C1", "C2", "C3"}, pageIDs(page))

	require.NoError(t, v.RequestSort(ColumnConceptID))
	page, _ = v.Current()
	assert.Equal(t, Desc, page.Order)

	// Descending flips back to ascending.
	require.NoError(t, v.RequestSort(ColumnConceptID))
	page, _ = v.Current()
	assert.Equal(t, Asc, page.Order)

	require.NoError(t, v.SetRowsPerPage(5))
	require.NoError(t, v.SetPage(1))
	page, _ = v.Current()
	assert.Empty(t, page.Rows)
	assert.Equal(t, 1, page.Page)

	require.NoError(t, v.RequestSort(ColumnStatus))
	page, _ = v.Current()
	assert.Equal(t, 0, page.Page)

	assert.ErrorIs(t, v.SetRowsPerPage(7), ErrInvalidPerPage)
	assert.ErrorIs(t, v.RequestSort("nope"), ErrInvalidColumn)

	v.Close()
	assert.False(t, v.IsOpen())

	require.NoError(t, v.Open(slot))
	page, _ = v.Current()
	assert.Equal(t, ColumnStatus, page.OrderBy)
	assert.Equal(t, Desc, page.Order)
	assert.Equal(t, 0, page.Page)
	assert.Equal(t, DefaultRowsPerPage, page.RowsPerPage)
}

func TestDetailView_RejectsUnsettled(t *testing.T) {
	v := NewDetailView()
	err := v.Open(models.Slot{Index: 1, State: models.SlotLoading})
	assert.ErrorIs(t, err, ErrNotSettled)
	assert.False(t, v.IsOpen())
}

func pageIDs(p Page) []string {
	out := make([]string, len(p.Rows))
	for i, r := range p.Rows {
		out[i] = r.ConceptID
	}
	return out
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, Desc, o)

	o, err = ParseOrder("asc")
	require.NoError(t, err)
	assert.Equal(t, Asc, o)

	_, err = ParseOrder("up")
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestExportCSV(t *testing.T) {
	rows, meta := classificationFixture()
	summary := SortRows(Summarize(rows, meta), ColumnStatus, Desc)

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, summary))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, CSVHeader, records[0])
	assert.Equal(t, []string{"1", "C2", "Parent", "Skipped", "conflict"}, records[1])
}

func ptr[T any](v T) *T { return &v }

func TestBuildProgress_Partition(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := &models.ImportMetaData{Dictionary: dictURL, DateTime: started.Format(time.RFC3339Nano)}
	rows, reqMeta := classificationFixture()

	lists := tracker.Lists{
		Loading: []*bool{ptr(false), ptr(true), ptr(false), nil, ptr(false), ptr(true)},
		InProgress: []*string{
			ptr("Adding to D--3 concepts from CIEL"),
			ptr("Adding to D--1 concept from CIEL"),
			ptr("Adding to D--2 concepts from CIEL"),
			ptr("Adding to D--orphan"),
			ptr("Adding to D--no payload"),
			nil,
		},
		Errored: []*models.ErrorPayload{nil, nil, ptr(models.ErrorPayload("Unauthorized")), nil, nil, nil},
		Success: []*models.ImportResult{{Payload: rows, Meta: reqMeta}},
		MetaData: []*models.ImportMetaData{meta, meta, meta, nil, nil, meta},
	}

	p := BuildProgress(lists, started.Add(2*time.Hour))

	require.Len(t, p.InProgress, 1)
	assert.Equal(t, 1, p.InProgress[0].Index)
	assert.Equal(t, "Adding to D", p.InProgress[0].Header)
	assert.Equal(t, "1 concept from CIEL", p.InProgress[0].Subheader)
	assert.Equal(t, "D", p.InProgress[0].DictionaryName)
	assert.Equal(t, "2 hours ago", p.InProgress[0].TimeSince)

	require.Len(t, p.Failed, 1)
	assert.Equal(t, 2, p.Failed[0].Index)
	assert.Equal(t, "Unauthorized", p.Failed[0].Subheader)

	require.Len(t, p.Completed, 2)
	assert.Equal(t, 4, p.Completed[0].Index)
	assert.Equal(t, SuccessfulMessage, p.Completed[0].Subheader)
	assert.Equal(t, 0, p.Completed[1].Index)
	assert.Equal(t, "Added 2 of 3 concepts, 1 skipped", p.Completed[1].Subheader)

	seen := map[int]int{}
	for _, bucket := range [][]Card{p.InProgress, p.Failed, p.Completed} {
		for _, c := range bucket {
			seen[c.Index]++
		}
	}
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1, 4: 1}, seen)
	assert.Empty(t, p.Message())
}

func TestBuildProgress_Empty(t *testing.T) {
	p := BuildProgress(tracker.Lists{}, time.Now())
	assert.Equal(t, 0, p.Total())
	assert.Equal(t, EmptyMessage, p.Message())
	assert.NotNil(t, p.Completed)
}

func TestCompletedMessage(t *testing.T) {
	assert.Equal(t, SuccessfulMessage, CompletedMessage(nil))
	assert.Equal(t, "Added 1 of 1 concept", CompletedMessage(&models.ImportResult{
		Payload: []models.ConceptResultRow{row("C1", true, models.SingleReason("ok"))},
	}))
}

func TestEmptyErrorPayload_CompletedInOverviewAndDetail(t *testing.T) {
	lists := tracker.Lists{
		Loading:    []*bool{ptr(false)},
		InProgress: []*string{ptr("Adding to D--1 concept from CIEL")},
		Errored:    []*models.ErrorPayload{ptr(models.ErrorPayload(""))},
	}

	p := BuildProgress(lists, time.Now())
	assert.Empty(t, p.Failed)
	require.Len(t, p.Completed, 1)
	assert.Equal(t, SuccessfulMessage, p.Completed[0].Subheader)

	slot := lists.Slots()[0]
	assert.Equal(t, models.SlotSucceeded, slot.State)

	view := NewDetailView()
	require.NoError(t, view.Open(slot))
	page, err := view.Current()
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}
