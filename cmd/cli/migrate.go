package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hypolab/adapters/postgres"
	"hypolab/adapters/postgres/migrations"
	apperrors "hypolab/internal/errors"
)

func newMigrateCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the history database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List embedded migrations and whether each is applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !g.cfg.Database.Enabled() {
				return apperrors.ConfigInvalid("a history database is required: set --database-url or DATABASE_URL")
			}
			db, err := postgres.Connect(cmd.Context(), g.cfg.Database.Driver, g.cfg.Database.URL, 1)
			if err != nil {
				return err
			}
			defer db.Close()

			list, err := migrations.NewMigrator(db, g.logger).Status(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range list {
				state := "pending"
				if m.Applied {
					state = "applied"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", m.Version, state)
			}
			return nil
		},
	}

	cmd.AddCommand(up, status)
	return cmd
}
