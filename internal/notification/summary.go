package notification

import (
	"sort"

	"github.com/concept-importer/backend/internal/models"
)

// Row classifications.
const (
	TypeParent    = "Parent"
	TypeDependent = "Dependent"

	StatusImported = "Imported"
	StatusSkipped  = "Skipped"
)

// Column names a summary can be sorted by.
const (
	ColumnConceptID   = "conceptId"
	ColumnConceptType = "conceptType"
	ColumnStatus      = "status"
	ColumnReasons     = "reasons"
)

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// SummaryRow is one classified concept of an operation's result.
type SummaryRow struct {
	ConceptID   string `json:"conceptId" msgpack:"conceptId"`
	ConceptType string `json:"conceptType" msgpack:"conceptType"`
	Status      string `json:"status" msgpack:"status"`
	Reasons     string `json:"reasons" msgpack:"reasons"`
}

// Field returns the value of column, or "" for an unknown column.
func (r SummaryRow) Field(column string) string {
	switch column {
	case ColumnConceptID:
		return r.ConceptID
	case ColumnConceptType:
		return r.ConceptType
	case ColumnStatus:
		return r.Status
	case ColumnReasons:
		return r.Reasons
	}
	return ""
}

// ValidColumn reports whether rows can be sorted by column.
func ValidColumn(column string) bool {
	switch column {
	case ColumnConceptID, ColumnConceptType, ColumnStatus, ColumnReasons:
		return true
	}
	return false
}

// Summarize classifies the concept rows of a result. Rows that do not name
// a concept are dropped. A nil meta marks every row as a dependent.
func Summarize(rows []models.ConceptResultRow, meta *models.RequestMeta) []SummaryRow {
	out := make([]SummaryRow, 0, len(rows))
	for _, row := range rows {
		if !row.IsConcept() {
			continue
		}

		id := row.ConceptID()
		s := SummaryRow{
			ConceptID:   id,
			ConceptType: TypeDependent,
			Status:      StatusSkipped,
			Reasons:     row.Message.Display(),
		}
		if meta.IsRequested(id) {
			s.ConceptType = TypeParent
		}
		if row.Added {
			s.Status = StatusImported
		}
		out = append(out, s)
	}
	return out
}

// SortRows returns rows ordered by column. Equal keys keep their original
// relative order, so sorting a sorted slice again changes nothing.
func SortRows(rows []SummaryRow, column string, order Order) []SummaryRow {
	sorted := make([]SummaryRow, len(rows))
	copy(sorted, rows)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Field(column), sorted[j].Field(column)
		if order == Asc {
			return a < b
		}
		return a > b
	})
	return sorted
}

// Paginate returns the rows of page (zero based). A page past the end is
// empty.
func Paginate(rows []SummaryRow, page, rowsPerPage int) []SummaryRow {
	if page < 0 || rowsPerPage <= 0 {
		return []SummaryRow{}
	}
	start := page * rowsPerPage
	if start >= len(rows) {
		return []SummaryRow{}
	}
	end := start + rowsPerPage
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// PageCount is the number of pages rows span.
func PageCount(total, rowsPerPage int) int {
	if rowsPerPage <= 0 || total == 0 {
		return 0
	}
	return (total + rowsPerPage - 1) / rowsPerPage
}

// Title names an operation as "<dictionary> - Adding concepts from <source>",
// using the first result row for the source. Missing parts are left blank.
func Title(meta *models.RequestMeta, rows []models.ConceptResultRow) string {
	dictionary := models.PathSegment(meta.Dictionary(), models.ContainerNameSegment)

	source := ""
	if len(rows) > 0 {
		source = models.PathSegment(rows[0].Expression, models.ContainerNameSegment)
	}

	return dictionary + " - Adding concepts from " + source
}
