package hypothesis

import (
	"hypolab/domain/core"
)

// PotencyCheck is evidence that the assay would have detected the effect if present.
// A positive control is mandatory; the other two fields each add a point.
type PotencyCheck struct {
	PositiveControl         string `json:"positive_control" validate:"required"`
	SensitivityVerification string `json:"sensitivity_verification,omitempty"`
	TimingValidation        string `json:"timing_validation,omitempty"`
}

// EvidencePerWeekScore rates a test on four 0-3 dimensions
type EvidencePerWeekScore struct {
	LikelihoodRatio int `json:"likelihood_ratio" validate:"min=0,max=3"`
	Cost            int `json:"cost" validate:"min=0,max=3"`
	Speed           int `json:"speed" validate:"min=0,max=3"`
	Ambiguity       int `json:"ambiguity" validate:"min=0,max=3"`
}

// MaxEvidencePerWeek is the highest attainable total
const MaxEvidencePerWeek = 12

// Total sums the four dimensions
func (s EvidencePerWeekScore) Total() int {
	return s.LikelihoodRatio + s.Cost + s.Speed + s.Ambiguity
}

// Dimensions returns the dimension values keyed by name
func (s EvidencePerWeekScore) Dimensions() map[string]int {
	return map[string]int{
		"likelihood_ratio": s.LikelihoodRatio,
		"cost":             s.Cost,
		"speed":            s.Speed,
		"ambiguity":        s.Ambiguity,
	}
}

// ObjectTransposition records whether the test was reconsidered in a different system
type ObjectTransposition struct {
	AlternativeSystem string `json:"alternative_system,omitempty"`
	Rationale         string `json:"rationale,omitempty"`
}

// FeasibilityStatus grades how practical a test is
type FeasibilityStatus string

const (
	FeasibilityFeasible    FeasibilityStatus = "feasible"
	FeasibilityChallenging FeasibilityStatus = "challenging"
	FeasibilityInfeasible  FeasibilityStatus = "infeasible"
)

// Valid reports whether s is a known feasibility status
func (s FeasibilityStatus) Valid() bool {
	switch s {
	case FeasibilityFeasible, FeasibilityChallenging, FeasibilityInfeasible:
		return true
	}
	return false
}

// Feasibility describes the practical cost of running a test
type Feasibility struct {
	Status         FeasibilityStatus `json:"status" validate:"required,oneof=feasible challenging infeasible"`
	EstimatedWeeks float64           `json:"estimated_weeks,omitempty" validate:"min=0"`
	Notes          string            `json:"notes,omitempty"`
}

// ExpectedOutcome is what one discriminated hypothesis predicts the test will show
type ExpectedOutcome struct {
	HypothesisID core.HypothesisID `json:"hypothesis_id" validate:"required,hypothesis_id"`
	Outcome      string            `json:"outcome" validate:"required"`
}

// TestRecord is a procedure designed to discriminate between hypotheses
type TestRecord struct {
	ID                   core.TestID          `json:"id" validate:"required,test_id"`
	Procedure            string               `json:"procedure" validate:"required"`
	DiscriminatesBetween []core.HypothesisID  `json:"discriminates_between" validate:"required,min=2,dive,hypothesis_id"`
	ExpectedOutcomes     []ExpectedOutcome    `json:"expected_outcomes" validate:"required,min=2,dive"`
	PotencyCheck         *PotencyCheck        `json:"potency_check,omitempty" validate:"required"`
	EvidencePerWeek      EvidencePerWeekScore `json:"evidence_per_week"`
	ObjectTransposition  *ObjectTransposition `json:"object_transposition,omitempty" validate:"omitempty"`
	Feasibility          *Feasibility         `json:"feasibility,omitempty" validate:"omitempty"`
}

// OutcomeFor returns the expected outcome recorded for a hypothesis
func (t TestRecord) OutcomeFor(id core.HypothesisID) (string, bool) {
	for _, o := range t.ExpectedOutcomes {
		if o.HypothesisID == id {
			return o.Outcome, true
		}
	}
	return "", false
}

// Discriminates reports whether the test lists id among its discriminated hypotheses
func (t TestRecord) Discriminates(id core.HypothesisID) bool {
	for _, h := range t.DiscriminatesBetween {
		if h == id {
			return true
		}
	}
	return false
}
