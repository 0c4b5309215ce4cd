package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hypolab/app"
	"hypolab/domain/core"
	"hypolab/internal/session"
)

func newRecordCmd(g *globals) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Seal and verify replayable session records",
		Long: `Session records are kept as JSON files under --dir
(default SESSION_RECORDS_DIR).`,
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Record directory")

	service := func() (*app.EvaluationService, *session.FileStore, error) {
		if dir == "" {
			dir = g.cfg.Records.Dir
		}
		store, err := session.NewFileStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return app.NewEvaluationService(g.policy, app.WithLogger(g.logger), app.WithRecordRepository(store)), store, nil
	}

	seal := &cobra.Command{
		Use:   "seal [record-file] [artifact-file]",
		Short: "Hash a record's messages and artifact and store it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r session.Record
			if err := readDocument(args[0], &r); err != nil {
				return err
			}
			artifact, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read artifact: %w", err)
			}
			svc, _, err := service()
			if err != nil {
				return err
			}
			sealed, err := svc.SealRecord(cmd.Context(), r, artifact)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", sealed.ID, sealed.Outputs.ArtifactHash)
			return nil
		},
	}

	verify := &cobra.Command{
		Use:   "verify [session] [record-id] [artifact-file]",
		Short: "Recompute a stored record's hashes against an artifact",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("failed to read artifact: %w", err)
			}
			svc, _, err := service()
			if err != nil {
				return err
			}
			v, err := svc.VerifyRecord(cmd.Context(), args[0], core.RecordID(args[1]), artifact)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), v); err != nil {
				return err
			}
			return v.Err()
		},
	}

	list := &cobra.Command{
		Use:   "list [session]",
		Short: "List stored record ids for a session, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := service()
			if err != nil {
				return err
			}
			ids, err := store.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.AddCommand(seal, verify, list)
	return cmd
}
