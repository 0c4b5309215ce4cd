package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hypolab/adapters/excel"
	"hypolab/app"
	"hypolab/internal/scorecard"
)

func newScoreCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score contributions or whole sessions against the rubric",
	}
	cmd.AddCommand(newScoreContributionsCmd(g), newScoreSessionCmd(g))
	return cmd
}

func newScoreContributionsCmd(g *globals) *cobra.Command {
	var export string

	cmd := &cobra.Command{
		Use:   "contributions [scores.xlsx|scores.csv]",
		Short: "Score per-criterion contribution sheets",
		Long: `Score agent contributions read from a workbook or CSV.

Required columns: contribution, role, criterion, score. Optional columns:
anchors, claims_kill, missing_potency_check.

Example: hypolab-cli score contributions round3.xlsx --export round3-scored.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			named, err := excel.NewDataReader(args[0], g.logger).ReadContributions()
			if err != nil {
				return err
			}

			list := make([]scorecard.Contribution, len(named))
			for i, n := range named {
				list[i] = n.Contribution
			}
			svc := app.NewEvaluationService(g.policy, app.WithLogger(g.logger))
			scores, summary, err := svc.ScoreContributions(list)
			if err != nil {
				return err
			}

			report := excel.Report{Summary: summary}
			type row struct {
				Name  string                      `json:"name"`
				Score scorecard.ContributionScore `json:"score"`
			}
			rows := make([]row, len(named))
			for i, n := range named {
				report.Contributions = append(report.Contributions, excel.ScoredContribution{
					Name: n.Name, Contribution: n.Contribution, Score: scores[i],
				})
				rows[i] = row{Name: n.Name, Score: scores[i]}
			}

			if err := printJSON(cmd.OutOrStdout(), map[string]interface{}{"contributions": rows, "summary": summary}); err != nil {
				return err
			}
			return exportWorkbook(export, report)
		},
	}

	cmd.Flags().StringVar(&export, "export", "", "Write a scorecard workbook to this path")
	return cmd
}

func newScoreSessionCmd(g *globals) *cobra.Command {
	var export string

	cmd := &cobra.Command{
		Use:   "session [session-file]",
		Short: "Score a session snapshot across the seven dimensions",
		Long: `Score a session snapshot (JSON or YAML) holding hypotheses, predictions,
tests, transitions, assumptions and critiques.

Example: hypolab-cli score session RS1.yaml --policy strict.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var snapshot scorecard.Session
			if err := readDocument(args[0], &snapshot); err != nil {
				return err
			}
			score := scorecard.ScoreSession(snapshot, g.policy.Scoring)
			if err := printJSON(cmd.OutOrStdout(), score); err != nil {
				return err
			}
			return exportWorkbook(export, excel.Report{Session: &score})
		},
	}

	cmd.Flags().StringVar(&export, "export", "", "Write a scorecard workbook to this path")
	return cmd
}

func exportWorkbook(path string, report excel.Report) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := excel.WriteScorecard(f, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
