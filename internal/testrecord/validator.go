// Package testrecord scores test designs: potency checks, discriminative
// power between expected outcomes, and evidence-per-week plausibility.
package testrecord

import (
	"fmt"
	"strings"

	"hypolab/domain/hypothesis"
	"hypolab/internal/polarity"
)

// MinPotencyFieldLength is the shortest potency description that earns a point
const MinPotencyFieldLength = 10

// CalculatePotencyScore awards one point each for a positive control,
// sensitivity verification and timing validation of at least 10 characters
func CalculatePotencyScore(pc *hypothesis.PotencyCheck) int {
	if pc == nil {
		return 0
	}
	score := 0
	for _, field := range []string{pc.PositiveControl, pc.SensitivityVerification, pc.TimingValidation} {
		if len(strings.TrimSpace(field)) >= MinPotencyFieldLength {
			score++
		}
	}
	return score
}

// Potency is the outcome of the potency gate
type Potency struct {
	Valid  bool     `json:"valid"`
	Score  int      `json:"score"`
	Issues []string `json:"issues,omitempty"`
}

// ValidatePotencyCheck is a hard gate: a missing check or a positive control
// shorter than 10 characters is invalid with score 0, whatever else is present.
func ValidatePotencyCheck(pc *hypothesis.PotencyCheck) Potency {
	if pc == nil {
		return Potency{Issues: []string{"potency check is missing; a negative result would be uninterpretable"}}
	}
	if n := len(strings.TrimSpace(pc.PositiveControl)); n < MinPotencyFieldLength {
		return Potency{Issues: []string{
			fmt.Sprintf("positive control must be at least %d characters, got %d", MinPotencyFieldLength, n),
		}}
	}

	result := Potency{Valid: true, Score: CalculatePotencyScore(pc)}
	if len(strings.TrimSpace(pc.SensitivityVerification)) < MinPotencyFieldLength {
		result.Issues = append(result.Issues, "no sensitivity verification")
	}
	if len(strings.TrimSpace(pc.TimingValidation)) < MinPotencyFieldLength {
		result.Issues = append(result.Issues, "no timing validation")
	}
	return result
}

// Discrimination is the outcome of checking a test's expected outcomes
type Discrimination struct {
	Valid  bool     `json:"valid"`
	Score  int      `json:"score"`
	Issues []string `json:"issues,omitempty"`
}

// Validator checks test records with a pluggable polarity classifier
type Validator struct {
	classifier polarity.Classifier
	policy     InflationPolicy
}

// NewValidator creates a validator; a nil classifier uses the keyword heuristic
func NewValidator(classifier polarity.Classifier, policy InflationPolicy) *Validator {
	if classifier == nil {
		classifier = polarity.NewKeywordClassifier()
	}
	return &Validator{classifier: classifier, policy: policy}
}

// DefaultValidator uses the keyword classifier and the default inflation policy
func DefaultValidator() *Validator {
	return NewValidator(nil, DefaultInflationPolicy())
}

// ValidateDiscriminativePower fails when fewer than two hypotheses are
// discriminated, one lacks an expected outcome, or every outcome is the same.
// Scores 3 for distinct outcomes of opposite decided polarity, 2 for merely
// distinct outcomes, 1 when some but not all outcomes coincide.
func (v *Validator) ValidateDiscriminativePower(t hypothesis.TestRecord) Discrimination {
	if len(t.DiscriminatesBetween) < 2 {
		return Discrimination{Issues: []string{
			fmt.Sprintf("test must discriminate at least 2 hypotheses, has %d", len(t.DiscriminatesBetween)),
		}}
	}

	var issues []string
	outcomes := make([]string, 0, len(t.DiscriminatesBetween))
	for _, id := range t.DiscriminatesBetween {
		outcome, ok := t.OutcomeFor(id)
		if !ok || strings.TrimSpace(outcome) == "" {
			issues = append(issues, fmt.Sprintf("no expected outcome for %s", id))
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	if len(issues) > 0 {
		return Discrimination{Issues: issues}
	}

	distinct := make(map[string]struct{}, len(outcomes))
	for _, o := range outcomes {
		distinct[polarity.Normalize(o)] = struct{}{}
	}
	if len(distinct) == 1 {
		return Discrimination{Issues: []string{"all expected outcomes are identical"}}
	}

	if len(distinct) < len(outcomes) {
		return Discrimination{
			Valid:  true,
			Score:  1,
			Issues: []string{"some hypotheses share an expected outcome"},
		}
	}
	if v.binaryResults(outcomes) {
		return Discrimination{Valid: true, Score: 3}
	}
	return Discrimination{Valid: true, Score: 2}
}

// binaryResults reports whether every outcome has a decided polarity and both polarities occur
func (v *Validator) binaryResults(outcomes []string) bool {
	seen := make(map[polarity.Polarity]bool, 2)
	for _, o := range outcomes {
		p := v.classifier.Classify(o)
		if p == polarity.Ambiguous {
			return false
		}
		seen[p] = true
	}
	return len(seen) > 1
}

// Report is the composite validation of one test record
type Report struct {
	Valid          bool           `json:"valid"`
	Issues         []string       `json:"issues,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
	Discrimination Discrimination `json:"discrimination"`
	Potency        Potency        `json:"potency"`
	Inflation      Inflation      `json:"inflation"`
}

// ValidateTest composes the discrimination and potency gates with the soft
// checks. Only missing discrimination or potency make a test invalid.
func (v *Validator) ValidateTest(t hypothesis.TestRecord) Report {
	report := Report{
		Discrimination: v.ValidateDiscriminativePower(t),
		Potency:        ValidatePotencyCheck(t.PotencyCheck),
		Inflation:      DetectInflatedScores(t.EvidencePerWeek, v.policy),
	}

	if !report.Discrimination.Valid {
		report.Issues = append(report.Issues, report.Discrimination.Issues...)
	}
	if !report.Potency.Valid {
		report.Issues = append(report.Issues, report.Potency.Issues...)
	} else if report.Potency.Score == 1 {
		report.Warnings = append(report.Warnings, "potency check relies on the positive control alone")
	}

	if report.Inflation.Inflated {
		report.Warnings = append(report.Warnings, report.Inflation.Reasons...)
	}
	if t.ObjectTransposition == nil || strings.TrimSpace(t.ObjectTransposition.Rationale) == "" {
		report.Warnings = append(report.Warnings, "no object-transposition reasoning: consider running the test in a different system")
	}
	if t.Feasibility != nil && t.Feasibility.Status == hypothesis.FeasibilityInfeasible {
		report.Warnings = append(report.Warnings, "test is marked infeasible")
	}

	report.Valid = len(report.Issues) == 0
	return report
}
