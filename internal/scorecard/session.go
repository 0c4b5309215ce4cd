package scorecard

import (
	"fmt"
	"strings"

	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
	"hypolab/internal/testrecord"
)

// DimensionMax caps every session dimension
const DimensionMax = 10

// Dimension names
const (
	DimParadoxGrounding     = "paradox_grounding"
	DimHypothesisKillRate   = "hypothesis_kill_rate"
	DimTestDiscriminability = "test_discriminability"
	DimAssumptionTracking   = "assumption_tracking"
	DimThirdAlternative     = "third_alternative_discovery"
	DimFeasibility          = "experimental_feasibility"
	DimAdversarialPressure  = "adversarial_pressure"
)

// Policy holds the tunable thresholds of session scoring
type Policy struct {
	Inflation testrecord.InflationPolicy `yaml:"inflation" json:"inflation"`
	// SprawlThreshold warns when more live hypotheses than this are in play
	SprawlThreshold int `yaml:"sprawl_threshold" json:"sprawl_threshold" validate:"min=0"`
	// KillRatioMin and KillRatioMax bound a healthy share of refuted hypotheses
	KillRatioMin float64 `yaml:"kill_ratio_min" json:"kill_ratio_min" validate:"gte=0,lte=1"`
	KillRatioMax float64 `yaml:"kill_ratio_max" json:"kill_ratio_max" validate:"gte=0,lte=1,gtefield=KillRatioMin"`
	// MinCompeting is how many hypotheses count as a real competition
	MinCompeting int `yaml:"min_competing" json:"min_competing" validate:"min=0"`
	// TranscriptSections is applied to contributions that do not set their own
	TranscriptSections int `yaml:"transcript_sections" json:"transcript_sections" validate:"min=0"`
}

// DefaultPolicy returns the stock thresholds
func DefaultPolicy() Policy {
	return Policy{
		Inflation:       testrecord.DefaultInflationPolicy(),
		SprawlThreshold: 8,
		KillRatioMin:    0.2,
		KillRatioMax:    0.8,
		MinCompeting:    3,
	}
}

// ScoreContribution scores c, filling in the policy's transcript length when c has none
func (p Policy) ScoreContribution(c Contribution) ContributionScore {
	if c.TranscriptSections == 0 {
		c.TranscriptSections = p.TranscriptSections
	}
	return ScoreContribution(c)
}

// Session is everything a research session produced
type Session struct {
	ID          string                  `json:"id" yaml:"id"`
	Paradox     string                  `json:"paradox,omitempty" yaml:"paradox,omitempty"`
	Hypotheses  []hypothesis.Hypothesis `json:"hypotheses" yaml:"hypotheses"`
	Predictions []hypothesis.Prediction `json:"predictions,omitempty" yaml:"predictions,omitempty"`
	Tests       []hypothesis.TestRecord `json:"tests,omitempty" yaml:"tests,omitempty"`
	Transitions []hypothesis.Transition `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	Assumptions []hypothesis.Assumption `json:"assumptions,omitempty" yaml:"assumptions,omitempty"`
	Critiques   []hypothesis.Critique   `json:"critiques,omitempty" yaml:"critiques,omitempty"`
}

// Signal is one independently checked condition inside a dimension
type Signal struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	Earned bool   `json:"earned"`
}

// DimensionScore is the capped sum of earned signal points
type DimensionScore struct {
	Name    string   `json:"name"`
	Score   int      `json:"score"`
	Max     int      `json:"max"`
	Signals []Signal `json:"signals"`
}

// SessionScore is the graded session result
type SessionScore struct {
	SessionID  string           `json:"session_id"`
	Dimensions []DimensionScore `json:"dimensions"`
	Total      int              `json:"total"`
	Max        int              `json:"max"`
	Percentage float64          `json:"percentage"`
	Grade      string           `json:"grade"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// Dimension returns the named dimension score
func (s SessionScore) Dimension(name string) (DimensionScore, bool) {
	for _, d := range s.Dimensions {
		if d.Name == name {
			return d, true
		}
	}
	return DimensionScore{}, false
}

// Grade maps a percentage to a letter
func Grade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	}
	return "F"
}

func dimension(name string, signals ...Signal) DimensionScore {
	d := DimensionScore{Name: name, Max: DimensionMax, Signals: signals}
	for _, s := range signals {
		if s.Earned {
			d.Score += s.Points
		}
	}
	if d.Score > d.Max {
		d.Score = d.Max
	}
	return d
}

func signal(name string, points int, earned bool) Signal {
	return Signal{Name: name, Points: points, Earned: earned}
}

// ScoreSession computes the seven dimensions and the overall grade
func ScoreSession(s Session, p Policy) SessionScore {
	v := testrecord.NewValidator(nil, p.Inflation)
	reports := make([]testrecord.Report, len(s.Tests))
	for i, t := range s.Tests {
		reports[i] = v.ValidateTest(t)
	}

	result := SessionScore{
		SessionID: s.ID,
		Dimensions: []DimensionScore{
			paradoxGrounding(s),
			killRate(s, p),
			testDiscriminability(reports),
			assumptionTracking(s),
			thirdAlternative(s, p),
			feasibility(s, reports),
			adversarialPressure(s),
		},
	}
	for _, d := range result.Dimensions {
		result.Total += d.Score
		result.Max += d.Max
	}
	result.Percentage = round1(float64(result.Total) / float64(result.Max) * 100)
	result.Grade = Grade(result.Percentage)
	result.Warnings = sessionWarnings(s, p, reports)
	return result
}

func paradoxGrounding(s Session) DimensionScore {
	anchored, observed := 0, 0
	for _, h := range s.Hypotheses {
		if len(h.Provenance.Anchors) > 0 {
			anchored++
		}
		if !h.Provenance.IsInference {
			observed++
		}
	}
	n := len(s.Hypotheses)
	return dimension(DimParadoxGrounding,
		signal("paradox_stated", 4, strings.TrimSpace(s.Paradox) != ""),
		signal("hypotheses_anchored", 3, n > 0 && anchored*2 >= n),
		signal("grounded_in_observation", 3, n > 0 && observed*2 > n),
	)
}

func killRate(s Session, p Policy) DimensionScore {
	var kills []hypothesis.Transition
	for _, tr := range s.Transitions {
		if tr.ToState == hypothesis.StateRefuted {
			kills = append(kills, tr)
		}
	}

	cited := len(kills) > 0
	for _, k := range kills {
		if !citesSessionTest(k.TestResultID, s.Tests) {
			cited = false
			break
		}
	}

	refuted := 0
	for _, h := range s.Hypotheses {
		if h.State == hypothesis.StateRefuted {
			refuted++
		}
	}
	ratio := 0.0
	if len(s.Hypotheses) > 0 {
		ratio = float64(refuted) / float64(len(s.Hypotheses))
	}

	return dimension(DimHypothesisKillRate,
		signal("hypothesis_killed", 4, len(kills) > 0),
		signal("kills_cite_tests", 3, cited),
		signal("healthy_kill_ratio", 3, refuted > 0 && ratio >= p.KillRatioMin && ratio <= p.KillRatioMax),
	)
}

// citesSessionTest accepts a bare test id or a result id prefixed by one
func citesSessionTest(resultID string, tests []hypothesis.TestRecord) bool {
	if resultID == "" {
		return false
	}
	for _, t := range tests {
		id := string(t.ID)
		if resultID == id || strings.HasPrefix(resultID, id+"-") || strings.HasPrefix(resultID, id+":") {
			return true
		}
	}
	return false
}

func testDiscriminability(reports []testrecord.Report) DimensionScore {
	allDiscriminative := len(reports) > 0
	anyBinary := false
	for _, r := range reports {
		if !r.Discrimination.Valid {
			allDiscriminative = false
		}
		if r.Discrimination.Score == 3 {
			anyBinary = true
		}
	}
	return dimension(DimTestDiscriminability,
		signal("tests_designed", 2, len(reports) > 0),
		signal("all_tests_discriminative", 4, allDiscriminative),
		signal("binary_discrimination", 4, anyBinary),
	)
}

func assumptionTracking(s Session) DimensionScore {
	linked := len(s.Assumptions) > 0
	tested := false
	for _, a := range s.Assumptions {
		if len(a.HypothesisIDs) == 0 {
			linked = false
		}
		if a.Status == hypothesis.AssumptionVerified || a.Status == hypothesis.AssumptionFalsified {
			tested = true
		}
	}
	return dimension(DimAssumptionTracking,
		signal("assumptions_listed", 4, len(s.Assumptions) > 0),
		signal("assumptions_linked", 3, linked),
		signal("assumption_tested", 3, tested),
	)
}

func thirdAlternative(s Session, p Policy) DimensionScore {
	third, activated := 0, false
	for _, h := range s.Hypotheses {
		if h.Category != hypothesis.CategoryThirdAlternative {
			continue
		}
		third++
		if h.State != hypothesis.StateProposed && h.State != hypothesis.StateDeferred {
			activated = true
		}
	}
	return dimension(DimThirdAlternative,
		signal("third_alternative_present", 5, third > 0),
		signal("third_alternative_activated", 3, activated),
		signal("competing_hypotheses", 2, len(s.Hypotheses) >= p.MinCompeting),
		signal("multiple_third_alternatives", 2, third > 1),
	)
}

func feasibility(s Session, reports []testrecord.Report) DimensionScore {
	n := len(reports)
	potent, documented, honest := n > 0, n > 0, n > 0
	for i, r := range reports {
		if !r.Potency.Valid || r.Potency.Score < 2 {
			potent = false
		}
		if s.Tests[i].Feasibility == nil {
			documented = false
		}
		if r.Inflation.Inflated {
			honest = false
		}
	}
	return dimension(DimFeasibility,
		signal("potency_controls", 4, potent),
		signal("feasibility_documented", 3, documented),
		signal("no_inflated_scores", 3, honest),
	)
}

func adversarialPressure(s Session) DimensionScore {
	challenged := make(map[core.HypothesisID]bool, len(s.Critiques))
	for _, c := range s.Critiques {
		challenged[c.HypothesisID] = true
	}

	allChallenged, contested := true, 0
	critiqueLedKill := false
	for _, h := range s.Hypotheses {
		if h.Live() && h.State != hypothesis.StateProposed {
			contested++
			if !challenged[h.ID] {
				allChallenged = false
			}
		}
		if h.State == hypothesis.StateRefuted && challenged[h.ID] {
			critiqueLedKill = true
		}
	}

	return dimension(DimAdversarialPressure,
		signal("critiques_present", 4, len(s.Critiques) > 0),
		signal("live_hypotheses_challenged", 3, contested > 0 && allChallenged),
		signal("critique_led_kill", 3, critiqueLedKill),
	)
}

func sessionWarnings(s Session, p Policy, reports []testrecord.Report) []string {
	var warnings []string
	live := 0
	for _, h := range s.Hypotheses {
		if h.Live() {
			live++
		}
	}
	if p.SprawlThreshold > 0 && live > p.SprawlThreshold {
		warnings = append(warnings,
			fmt.Sprintf("hypothesis sprawl: %d live hypotheses exceeds %d; kill or defer some", live, p.SprawlThreshold))
	}
	for i, r := range reports {
		for _, w := range r.Warnings {
			warnings = append(warnings, fmt.Sprintf("%s: %s", s.Tests[i].ID, w))
		}
	}
	return warnings
}
