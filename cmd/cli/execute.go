package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hypolab/adapters/postgres"
	"hypolab/app"
	"hypolab/domain/hypothesis"
	"hypolab/internal/binding"
	"hypolab/internal/validation"
)

func newExecuteCmd(g *globals) *cobra.Command {
	var (
		sessionID     string
		apply         bool
		minConfidence string
		killsOnly     bool
		historyOut    string
	)

	cmd := &cobra.Command{
		Use:   "execute [bundle-file] [execution-file]",
		Short: "Record a test execution and derive lifecycle suggestions",
		Long: `Register a bundle, bind an execution result to the hypotheses its test
discriminates between, and print the suggested transitions.

With --apply the suggestions go through the lifecycle. When a history database
is configured, stored history is restored first and applied transitions are
saved back.

Example: hypolab-cli execute RS1.yaml run-7.json --apply --min-confidence medium`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var bundle validation.Bundle
			if err := readDocument(args[0], &bundle); err != nil {
				return err
			}
			var in binding.ExecutionInput
			if err := readDocument(args[1], &in); err != nil {
				return err
			}
			override, err := applyOverride(cmd, g.policy.Apply.Options(), minConfidence, killsOnly)
			if err != nil {
				return err
			}
			if sessionID == "" && len(bundle.Hypotheses) > 0 {
				sessionID = bundle.Hypotheses[0].SessionID
			}

			opts := []app.Option{app.WithLogger(g.logger)}
			if g.cfg.Database.Enabled() {
				db, err := g.openDB(ctx)
				if err != nil {
					return err
				}
				defer db.Close()
				opts = append(opts, app.WithHistoryRepository(postgres.NewHistoryRepository(db)))
			}
			svc := app.NewEvaluationService(g.policy, opts...)

			if report, err := svc.Register(ctx, sessionID, app.RegisterRequest{Bundle: bundle}); err != nil {
				if !report.Valid {
					_ = printJSON(cmd.ErrOrStderr(), report)
				}
				return err
			}
			if g.cfg.Database.Enabled() {
				if err := svc.Restore(ctx, sessionID); err != nil {
					return err
				}
			}

			req := app.ExecuteRequest{Execution: in, Apply: apply, Options: override}
			result, err := svc.ExecuteTest(ctx, sessionID, req)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}

			if historyOut == "" {
				return nil
			}
			history, err := svc.History(sessionID)
			if err != nil {
				return err
			}
			f, err := os.Create(historyOut)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", historyOut, err)
			}
			if err := printJSON(f, history); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (defaults to the first hypothesis' session)")
	cmd.Flags().BoolVar(&apply, "apply", false, "Apply the suggestions through the lifecycle")
	cmd.Flags().StringVar(&minConfidence, "min-confidence", "", "Skip suggestions below: high|medium|low|speculative")
	cmd.Flags().BoolVar(&killsOnly, "kills-only", false, "Apply kill suggestions and skip validations")
	cmd.Flags().StringVar(&historyOut, "history-out", "", "Write the session's transition history to this JSON file")
	return cmd
}

// applyOverride builds the apply filter from the flags that were set. Nil keeps
// the policy's filter.
func applyOverride(cmd *cobra.Command, defaults binding.ApplyOptions, minConfidence string, killsOnly bool) (*binding.ApplyOptions, error) {
	flags := cmd.Flags()
	if !flags.Changed("min-confidence") && !flags.Changed("kills-only") {
		return nil, nil
	}
	opts := &binding.ApplyOptions{MinConfidence: defaults.MinConfidence, KillsOnly: defaults.KillsOnly}
	if flags.Changed("min-confidence") {
		opts.MinConfidence = hypothesis.Confidence(minConfidence)
	}
	if flags.Changed("kills-only") {
		opts.KillsOnly = killsOnly
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("--min-confidence: %w", err)
	}
	return opts, nil
}
