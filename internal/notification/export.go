package notification

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVHeader is the first record of an exported summary.
var CSVHeader = []string{"#", "Concept ID", "Type", "Status", "Reasons"}

// ExportCSV writes rows, already in display order, as CSV.
func ExportCSV(w io.Writer, rows []SummaryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for i, r := range rows {
		record := []string{strconv.Itoa(i + 1), r.ConceptID, r.ConceptType, r.Status, r.Reasons}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
