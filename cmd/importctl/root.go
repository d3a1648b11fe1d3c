package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/concept-importer/backend/internal/kvlog"
	"github.com/concept-importer/backend/internal/session"
	"github.com/concept-importer/backend/internal/tracker"
)

// logFlags selects the persisted notification log a command reads.
type logFlags struct {
	dataDir   string
	backend   string
	sessionID string
}

func newRootCmd() *cobra.Command {
	flags := &logFlags{}

	cmd := &cobra.Command{
		Use:           "importctl",
		Short:         "Inspect concept import notifications offline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.dataDir, "data-dir", "d", "./data", "directory holding session logs")
	cmd.PersistentFlags().StringVarP(&flags.backend, "backend", "b", kvlog.KindFile, "log backend (file or duckdb)")
	cmd.PersistentFlags().StringVarP(&flags.sessionID, "session", "s", session.DefaultID, "session id")

	cmd.AddCommand(newListCmd(flags))
	cmd.AddCommand(newShowCmd(flags))
	cmd.AddCommand(newExportCmd(flags))
	cmd.AddCommand(newSessionsCmd(flags))

	return cmd
}

// withLists reads the selected session's notification lists and hands them
// to fn. The log is closed before returning.
func withLists(flags *logFlags, fn func(tracker.Lists) error) error {
	if flags.backend == kvlog.KindMemory {
		return errors.New("the memory backend keeps nothing to inspect; use file or duckdb")
	}

	store := session.NewLogStore(flags.dataDir, flags.backend, 0)
	if !store.Exists(flags.sessionID) {
		return fmt.Errorf("no log for session %q under %s", flags.sessionID, flags.dataDir)
	}

	log, err := store.OpenReadOnly(flags.sessionID)
	if err != nil {
		return err
	}
	defer log.Close()

	return fn(tracker.ReadLists(log))
}
