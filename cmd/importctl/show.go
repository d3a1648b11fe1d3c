package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/concept-importer/backend/internal/models"
	"github.com/concept-importer/backend/internal/notification"
	"github.com/concept-importer/backend/internal/tracker"
)

func newShowCmd(flags *logFlags) *cobra.Command {
	var orderBy string
	var order string
	var page int
	var rowsPerPage int

	cmd := &cobra.Command{
		Use:   "show <index>",
		Short: "Show the concept summary of a completed import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLists(flags, func(lists tracker.Lists) error {
				slot, err := slotAt(lists, args[0])
				if err != nil {
					return err
				}

				dir, err := notification.ParseOrder(order)
				if err != nil {
					return err
				}

				view := notification.NewDetailView()
				if err := view.Open(slot); err != nil {
					return err
				}
				defer view.Close()

				if err := view.SetSort(orderBy, dir); err != nil {
					return err
				}
				if err := view.SetRowsPerPage(rowsPerPage); err != nil {
					return err
				}
				// pages are numbered from 1 on the command line
				if err := view.SetPage(page - 1); err != nil {
					return err
				}

				current, err := view.Current()
				if err != nil {
					return err
				}
				return printPage(cmd.OutOrStdout(), current)
			})
		},
	}

	cmd.Flags().StringVar(&orderBy, "order-by", notification.DefaultColumn, "column to sort by (conceptId, conceptType, status, reasons)")
	cmd.Flags().StringVar(&order, "order", string(notification.DefaultOrder), "sort direction (asc or desc)")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page to show")
	cmd.Flags().IntVarP(&rowsPerPage, "rows-per-page", "n", notification.DefaultRowsPerPage, "rows per page (5, 10, 25, 50 or 100)")

	return cmd
}

// slotAt parses a notification index and returns its slot.
func slotAt(lists tracker.Lists, arg string) (models.Slot, error) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		return models.Slot{}, fmt.Errorf("invalid index %q", arg)
	}

	slots := lists.Slots()
	if index < 0 || index >= len(slots) || slots[index].State == models.SlotEmpty {
		return models.Slot{}, fmt.Errorf("no notification at index %d", index)
	}
	return slots[index], nil
}

func printPage(w io.Writer, p notification.Page) error {
	r := lipgloss.NewRenderer(w)
	titleStyle := r.NewStyle().Bold(true).Foreground(bucketColor)
	footerStyle := r.NewStyle().Foreground(mutedColor)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.NewStyle().Foreground(indexColor)).
		Headers("#", "CONCEPT ID", "TYPE", "STATUS", "REASONS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.NewStyle().Foreground(bucketColor).Bold(true).Padding(0, 1)
			}
			style := r.NewStyle().Foreground(headerColor).Padding(0, 1)
			if col == 3 && row >= 0 && row < len(p.Rows) && p.Rows[row].Status == notification.StatusSkipped {
				style = style.Foreground(failedColor)
			}
			return style
		})
	for _, row := range p.Rows {
		t.Row(strconv.Itoa(row.Number), row.ConceptID, row.ConceptType, row.Status, row.Reasons)
	}

	fmt.Fprintln(w, titleStyle.Render(p.Title))
	fmt.Fprintln(w, t.Render())
	_, err := fmt.Fprintln(w, footerStyle.Render(fmt.Sprintf("Page %d of %d (%d concepts, sorted by %s %s)",
		p.Page+1, max(p.PageCount, 1), p.Total, p.OrderBy, p.Order)))
	return err
}
