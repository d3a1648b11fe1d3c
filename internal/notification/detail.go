package notification

import (
	"errors"
	"fmt"

	"github.com/concept-importer/backend/internal/models"
)

// Defaults a detail view opens with.
const (
	DefaultColumn      = ColumnStatus
	DefaultOrder       = Desc
	DefaultRowsPerPage = 10
)

// RowsPerPageOptions are the page sizes a detail view accepts.
var RowsPerPageOptions = []int{5, 10, 25, 50, 100}

var (
	ErrViewClosed     = errors.New("detail view is closed")
	ErrNotSettled     = errors.New("operation has no result")
	ErrInvalidColumn  = errors.New("invalid sort column")
	ErrInvalidOrder   = errors.New("invalid sort order")
	ErrInvalidPage    = errors.New("invalid page")
	ErrInvalidPerPage = errors.New("invalid rows per page")
)

// ValidRowsPerPage reports whether n is one of RowsPerPageOptions.
func ValidRowsPerPage(n int) bool {
	for _, opt := range RowsPerPageOptions {
		if opt == n {
			return true
		}
	}
	return false
}

// ParseOrder validates a sort direction; "" yields the default.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case "":
		return DefaultOrder, nil
	case Asc, Desc:
		return Order(s), nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidOrder)
}

// PageRow is a summary row with its one-based position in the sorted list.
type PageRow struct {
	Number int `json:"number" msgpack:"number"`
	SummaryRow
}

// Page is what a detail view shows at one moment.
type Page struct {
	Index       int       `json:"index" msgpack:"index"`
	Title       string    `json:"title" msgpack:"title"`
	OrderBy     string    `json:"orderBy" msgpack:"orderBy"`
	Order       Order     `json:"order" msgpack:"order"`
	Page        int       `json:"page" msgpack:"page"`
	RowsPerPage int       `json:"rowsPerPage" msgpack:"rowsPerPage"`
	Total       int       `json:"total" msgpack:"total"`
	PageCount   int       `json:"pageCount" msgpack:"pageCount"`
	Rows        []PageRow `json:"rows" msgpack:"rows"`
}

// DetailView is the sortable, paginated table of one operation's result.
// Closing it discards all sort and page state.
type DetailView struct {
	open        bool
	index       int
	title       string
	rows        []SummaryRow
	orderBy     string
	order       Order
	page        int
	rowsPerPage int
}

// NewDetailView returns a closed view.
func NewDetailView() *DetailView {
	return &DetailView{}
}

// Open shows slot's result with the default sort and page. Only succeeded
// slots have a result to show.
func (v *DetailView) Open(slot models.Slot) error {
	if slot.State != models.SlotSucceeded || slot.Result == nil {
		return fmt.Errorf("slot %d: %w", slot.Index, ErrNotSettled)
	}
	v.reset()
	v.open = true
	v.index = slot.Index
	v.title = Title(slot.Result.Meta, slot.Result.Payload)
	v.rows = Summarize(slot.Result.Payload, slot.Result.Meta)
	return nil
}

// Close discards the view's state.
func (v *DetailView) Close() {
	v.reset()
}

func (v *DetailView) reset() {
	*v = DetailView{
		orderBy:     DefaultColumn,
		order:       DefaultOrder,
		rowsPerPage: DefaultRowsPerPage,
	}
}

// IsOpen reports whether the view shows an operation.
func (v *DetailView) IsOpen() bool {
	return v.open
}

// RequestSort sorts by column. Asking again for the column already sorted
// ascending flips it to descending; any other request sorts ascending. The
// page goes back to the first.
func (v *DetailView) RequestSort(column string) error {
	if !v.open {
		return ErrViewClosed
	}
	if !ValidColumn(column) {
		return fmt.Errorf("%q: %w", column, ErrInvalidColumn)
	}
	if v.orderBy == column && v.order == Asc {
		v.order = Desc
	} else {
		v.order = Asc
	}
	v.orderBy = column
	v.page = 0
	return nil
}

// SetSort sorts by column in the given order and goes back to the first
// page.
func (v *DetailView) SetSort(column string, order Order) error {
	if !v.open {
		return ErrViewClosed
	}
	if !ValidColumn(column) {
		return fmt.Errorf("%q: %w", column, ErrInvalidColumn)
	}
	if order != Asc && order != Desc {
		return fmt.Errorf("%q: %w", order, ErrInvalidOrder)
	}
	v.orderBy = column
	v.order = order
	v.page = 0
	return nil
}

// SetPage moves to page (zero based).
func (v *DetailView) SetPage(page int) error {
	if !v.open {
		return ErrViewClosed
	}
	if page < 0 {
		return fmt.Errorf("%d: %w", page, ErrInvalidPage)
	}
	v.page = page
	return nil
}

// SetRowsPerPage changes the page size and goes back to the first page.
func (v *DetailView) SetRowsPerPage(n int) error {
	if !v.open {
		return ErrViewClosed
	}
	if !ValidRowsPerPage(n) {
		return fmt.Errorf("%d: %w", n, ErrInvalidPerPage)
	}
	v.rowsPerPage = n
	v.page = 0
	return nil
}

// Sorted returns every row in the current order.
func (v *DetailView) Sorted() []SummaryRow {
	return SortRows(v.rows, v.orderBy, v.order)
}

// Current renders the visible page.
func (v *DetailView) Current() (Page, error) {
	if !v.open {
		return Page{}, ErrViewClosed
	}

	sorted := v.Sorted()
	visible := Paginate(sorted, v.page, v.rowsPerPage)

	rows := make([]PageRow, len(visible))
	for i, r := range visible {
		rows[i] = PageRow{Number: v.page*v.rowsPerPage + i + 1, SummaryRow: r}
	}

	return Page{
		Index:       v.index,
		Title:       v.title,
		OrderBy:     v.orderBy,
		Order:       v.order,
		Page:        v.page,
		RowsPerPage: v.rowsPerPage,
		Total:       len(sorted),
		PageCount:   PageCount(len(sorted), v.rowsPerPage),
		Rows:        rows,
	}, nil
}

// Title is the open operation's title.
func (v *DetailView) Title() string {
	return v.title
}
