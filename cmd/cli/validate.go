package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hypolab/internal/polarity"
	"hypolab/internal/testrecord"
	"hypolab/internal/validation"
)

func newValidateCmd(g *globals) *cobra.Command {
	var structuralOnly bool

	cmd := &cobra.Command{
		Use:   "validate [bundle-file]",
		Short: "Check a session bundle for structural and test-design problems",
		Long: `Validate a bundle of hypotheses, predictions, tests, assumptions and critiques.

Every structural problem is listed. Unless --structural-only is set, each test
also gets the discrimination, potency and inflation report.

Example: hypolab-cli validate session.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var bundle validation.Bundle
			if err := readDocument(args[0], &bundle); err != nil {
				return err
			}

			out := struct {
				Structure validation.Report            `json:"structure"`
				Tests     map[string]testrecord.Report `json:"tests,omitempty"`
			}{Structure: validation.ValidateBundle(bundle)}

			invalidTests := 0
			if !structuralOnly {
				v := testrecord.NewValidator(polarity.NewKeywordClassifier(), g.policy.Scoring.Inflation)
				out.Tests = make(map[string]testrecord.Report, len(bundle.Tests))
				for _, t := range bundle.Tests {
					report := v.ValidateTest(t)
					if !report.Valid {
						invalidTests++
					}
					out.Tests[string(t.ID)] = report
				}
			}

			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if err := out.Structure.Err(); err != nil {
				return err
			}
			if invalidTests > 0 {
				return fmt.Errorf("%d test(s) failed design checks", invalidTests)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&structuralOnly, "structural-only", false, "Skip the per-test design report")
	return cmd
}
