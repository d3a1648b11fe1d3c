package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/concept-importer/backend/internal/notification"
	"github.com/concept-importer/backend/internal/tracker"
)

func newExportCmd(flags *logFlags) *cobra.Command {
	var output string
	var orderBy string
	var order string

	cmd := &cobra.Command{
		Use:   "export <index>",
		Short: "Write the concept summary of a completed import as CSV",
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

				var w io.Writer = cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("create %s: %w", output, err)
					}
					defer f.Close()
					w = f
				}
				return notification.ExportCSV(w, view.Sorted())
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	cmd.Flags().StringVar(&orderBy, "order-by", notification.DefaultColumn, "column to sort by")
	cmd.Flags().StringVar(&order, "order", string(notification.DefaultOrder), "sort direction (asc or desc)")

	return cmd
}
