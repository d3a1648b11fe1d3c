package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/concept-importer/backend/internal/notification"
	"github.com/concept-importer/backend/internal/tracker"
)

func newListCmd(flags *logFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the progress overview of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLists(flags, func(lists tracker.Lists) error {
				printProgress(cmd.OutOrStdout(), notification.BuildProgress(lists, time.Now()))
				return nil
			})
		},
	}
}

// Styles
var (
	bucketColor = lipgloss.Color("212")
	indexColor  = lipgloss.Color("240")
	headerColor = lipgloss.Color("255")
	mutedColor  = lipgloss.Color("245")
	failedColor = lipgloss.Color("203")
)

func printProgress(w io.Writer, p notification.Progress) {
	r := lipgloss.NewRenderer(w)
	if msg := p.Message(); msg != "" {
		fmt.Fprintln(w, r.NewStyle().Foreground(mutedColor).Render(msg))
		return
	}

	printBucket(w, r, "In progress", p.InProgress, mutedColor)
	printBucket(w, r, "Failed", p.Failed, failedColor)
	printBucket(w, r, "Completed", p.Completed, mutedColor)
}

func printBucket(w io.Writer, r *lipgloss.Renderer, name string, cards []notification.Card, subColor lipgloss.Color) {
	if len(cards) == 0 {
		return
	}

	bucketStyle := r.NewStyle().Bold(true).Foreground(bucketColor)
	indexStyle := r.NewStyle().Foreground(indexColor)
	headerStyle := r.NewStyle().Foreground(headerColor)
	subStyle := r.NewStyle().Foreground(subColor)
	timeStyle := r.NewStyle().Foreground(mutedColor)

	fmt.Fprintln(w, bucketStyle.Render(fmt.Sprintf("%s (%d)", name, len(cards))))
	for _, c := range cards {
		fmt.Fprintf(w, "  %s %s\n", indexStyle.Render(fmt.Sprintf("[%d]", c.Index)), headerStyle.Render(c.Header))
		if c.Subheader != "" {
			fmt.Fprintf(w, "      %s\n", subStyle.Render(c.Subheader))
		}
		if c.StartedAt != "" {
			fmt.Fprintf(w, "      %s\n", timeStyle.Render(fmt.Sprintf("%s (%s)", c.StartedAt, c.TimeSince)))
		}
	}
	fmt.Fprintln(w)
}
