package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hypolab/adapters/postgres"
	"hypolab/internal/lifecycle"
)

func newHistoryCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Import, export and query stored transition history",
		Long: `Work with the transition history kept in the history database
(--database-url or DATABASE_URL).`,
	}
	cmd.AddCommand(
		newHistoryExportCmd(g),
		newHistoryImportCmd(g),
		newHistoryTransitionsCmd(g),
		newHistoryDeleteCmd(g),
	)
	return cmd
}

func newHistoryExportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "export [session]",
		Short: "Print a session's history keyed by hypothesis id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			history, err := postgres.NewHistoryRepository(db).LoadHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), history)
		},
	}
}

func newHistoryImportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "import [session] [history-file]",
		Short: "Check an exported history and store it for a session",
		Long: `Import a history export. The whole file is checked before anything is
stored: hypothesis ids, transition shape and contiguity of each chain.

Example: hypolab-cli history import RS1 RS1-history.json --database-url file:hypolab.db`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var history lifecycle.History
			if err := readDocument(args[1], &history); err != nil {
				return err
			}
			store := lifecycle.NewHistoryStore()
			if err := store.Import(history); err != nil {
				return err
			}

			db, err := g.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.NewHistoryRepository(db).SaveHistory(cmd.Context(), args[0], store.Export()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d transitions for %d hypotheses into session %s\n",
				store.Len(), len(store.HypothesisIDs()), args[0])
			return nil
		},
	}
}

func newHistoryTransitionsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "transitions [test-result-id]",
		Short: "List stored transitions citing a test result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			list, err := postgres.NewHistoryRepository(db).ListByTestResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}
}

func newHistoryDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [session]",
		Short: "Remove a session's stored history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			return postgres.NewHistoryRepository(db).DeleteHistory(cmd.Context(), args[0])
		},
	}
}
