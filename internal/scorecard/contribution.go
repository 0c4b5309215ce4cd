package scorecard

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"

	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
	"hypolab/internal/testrecord"
)

// Gate names
const (
	GateInvalidStructure    = "invalid_structure"
	GateMissingPotencyCheck = "missing_potency_check"
	GateFakeCitation        = "fake_citation"
	GateUnjustifiedKill     = "unjustified_kill"
)

// Contribution is one agent's scored output. Scores are keyed by criterion
// name; an optional criterion left out of Scores is inapplicable and does not
// count toward the maximum, a required one left out scores 0.
type Contribution struct {
	Role   Role           `json:"role" yaml:"role"`
	Scores map[string]int `json:"scores" yaml:"scores"`
	// Anchors are the transcript citations the contribution makes
	Anchors []core.Anchor `json:"anchors,omitempty" yaml:"anchors,omitempty"`
	// TranscriptSections bounds valid anchors; 0 disables the range check
	TranscriptSections int `json:"transcript_sections,omitempty" yaml:"transcript_sections,omitempty"`
	// ClaimsKill marks a critic contribution that argues for refuting a hypothesis
	ClaimsKill bool `json:"claims_kill,omitempty" yaml:"claims_kill,omitempty"`
	// MissingPotencyCheck marks a test design submitted without any potency check
	MissingPotencyCheck bool `json:"missing_potency_check,omitempty" yaml:"missing_potency_check,omitempty"`
}

// CriterionScore is one scored row of the breakdown
type CriterionScore struct {
	Criterion  string  `json:"criterion"`
	Score      int     `json:"score"`
	MaxScore   int     `json:"max_score"`
	Weight     float64 `json:"weight"`
	Weighted   float64 `json:"weighted"`
	Applicable bool    `json:"applicable"`
}

// GateFailure is a pass/fail gate that invalidated the contribution
type GateFailure struct {
	Gate   string `json:"gate"`
	Reason string `json:"reason"`
}

// ContributionScore is the weighted rubric result for one contribution
type ContributionScore struct {
	Role         Role             `json:"role"`
	Total        float64          `json:"total"`
	Max          float64          `json:"max"`
	Percentage   float64          `json:"percentage"`
	Breakdown    []CriterionScore `json:"breakdown"`
	Valid        bool             `json:"valid"`
	GateFailures []GateFailure    `json:"gate_failures,omitempty"`
	Warnings     []string         `json:"warnings,omitempty"`
}

// ScoreContribution computes the weighted total and applies the gates.
// Out-of-range scores are clamped and reported as warnings.
func ScoreContribution(c Contribution) ContributionScore {
	result := ContributionScore{Role: c.Role}
	if !c.Role.Valid() {
		result.GateFailures = append(result.GateFailures, GateFailure{
			Gate:   GateInvalidStructure,
			Reason: fmt.Sprintf("unknown role %q", c.Role),
		})
		return result
	}

	criteria := CriteriaFor(c.Role)
	known := make(map[string]bool, len(criteria))
	var scores, maxes, weights []float64
	for _, cr := range criteria {
		known[cr.Name] = true
		raw, present := c.Scores[cr.Name]
		row := CriterionScore{
			Criterion:  cr.Name,
			MaxScore:   cr.MaxScore(),
			Weight:     cr.Weight,
			Applicable: present || !cr.Optional,
		}
		if present {
			row.Score = clamp(raw, cr.MaxScore())
			if row.Score != raw {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s score %d is outside 0-%d", cr.Name, raw, cr.MaxScore()))
			}
		}
		if row.Applicable {
			row.Weighted = float64(row.Score) * cr.Weight
			scores = append(scores, float64(row.Score))
			maxes = append(maxes, float64(cr.MaxScore()))
			weights = append(weights, cr.Weight)
		}
		result.Breakdown = append(result.Breakdown, row)
	}

	unknown := make([]string, 0)
	for name := range c.Scores {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		result.Warnings = append(result.Warnings, fmt.Sprintf("criterion %s does not apply to %s", name, c.Role))
	}

	result.Total = floats.Dot(scores, weights)
	result.Max = floats.Dot(maxes, weights)
	if result.Max > 0 {
		result.Percentage = round1(result.Total / result.Max * 100)
	}

	result.GateFailures = gates(c, result.Breakdown)
	result.Valid = len(result.GateFailures) == 0
	return result
}

func gates(c Contribution, breakdown []CriterionScore) []GateFailure {
	score := func(name string) (int, bool) {
		for _, row := range breakdown {
			if row.Criterion == name {
				return row.Score, row.Applicable
			}
		}
		return 0, false
	}

	var failures []GateFailure
	if s, _ := score(StructuralCorrectness); s == 0 {
		failures = append(failures, GateFailure{
			Gate:   GateInvalidStructure,
			Reason: "structural correctness scored 0",
		})
	}

	if c.Role == RoleTestDesigner {
		if s, _ := score(PotencyCheck); s == 0 || c.MissingPotencyCheck {
			failures = append(failures, GateFailure{
				Gate:   GateMissingPotencyCheck,
				Reason: "test design has no usable potency check",
			})
		}
	}

	for _, a := range c.Anchors {
		if reason := citationProblem(a, c.TranscriptSections); reason != "" {
			failures = append(failures, GateFailure{Gate: GateFakeCitation, Reason: reason})
		}
	}

	if c.Role == RoleAdversarialCritic && c.ClaimsKill {
		if s, applicable := score(KillJustification); !applicable || s == 0 {
			failures = append(failures, GateFailure{
				Gate:   GateUnjustifiedKill,
				Reason: "kill claimed without justification",
			})
		}
	}
	return failures
}

func citationProblem(a core.Anchor, sections int) string {
	_, end, err := a.Span()
	if err != nil {
		return fmt.Sprintf("anchor %q is malformed", a)
	}
	if sections > 0 && end > sections {
		return fmt.Sprintf("anchor %s points beyond the transcript's %d sections", a, sections)
	}
	return ""
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// DeriveTestDesignerScores fills the test-design criteria from the test
// record validator. Object transposition is only scored when present.
func DeriveTestDesignerScores(t hypothesis.TestRecord, v *testrecord.Validator) map[string]int {
	if v == nil {
		v = testrecord.DefaultValidator()
	}
	report := v.ValidateTest(t)

	scores := map[string]int{
		DiscriminativePower: report.Discrimination.Score,
		PotencyCheck:        report.Potency.Score,
		EvidencePerWeek:     report.Inflation.Total / 4,
	}
	if report.Inflation.Inflated && scores[EvidencePerWeek] > 1 {
		scores[EvidencePerWeek] = 1
	}

	if ot := t.ObjectTransposition; ot != nil {
		points := 0
		if ot.AlternativeSystem != "" {
			points++
		}
		if ot.Rationale != "" {
			points++
		}
		scores[ObjectTransposition] = points
	}
	return scores
}

// Summary describes the spread of contribution percentages
type Summary struct {
	Count  int     `json:"count"`
	Valid  int     `json:"valid"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// SummarizeContributions aggregates percentages across scored contributions.
// An empty slice yields a zero summary.
func SummarizeContributions(scores []ContributionScore) (Summary, error) {
	summary := Summary{Count: len(scores)}
	if len(scores) == 0 {
		return summary, nil
	}

	data := make(stats.Float64Data, 0, len(scores))
	for _, s := range scores {
		data = append(data, s.Percentage)
		if s.Valid {
			summary.Valid++
		}
	}

	var err error
	if summary.Mean, err = stats.Mean(data); err != nil {
		return summary, err
	}
	if summary.Median, err = stats.Median(data); err != nil {
		return summary, err
	}
	if summary.StdDev, err = stats.StandardDeviation(data); err != nil {
		return summary, err
	}
	if summary.Min, err = stats.Min(data); err != nil {
		return summary, err
	}
	if summary.Max, err = stats.Max(data); err != nil {
		return summary, err
	}

	summary.Mean = round1(summary.Mean)
	summary.Median = round1(summary.Median)
	summary.StdDev = round1(summary.StdDev)
	return summary, nil
}
