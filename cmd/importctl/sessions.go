package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/concept-importer/backend/internal/session"
)

func newSessionsCmd(flags *logFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions with a persisted log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := session.NewLogStore(flags.dataDir, flags.backend, 0)
			ids := store.List()
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintf(out, "No sessions under %s\n", flags.dataDir)
				return nil
			}

			for _, id := range ids {
				fmt.Fprintln(out, id)
			}

			stats := store.Stats()
			size, _ := stats["totalSize"].(int64)
			fmt.Fprintf(out, "\n%d sessions, %s on disk\n", len(ids), humanize.Bytes(uint64(size)))
			return nil
		},
	}
}
