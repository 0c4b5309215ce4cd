package hypothesis

import (
	"hypolab/domain/core"
)

// PredictionType describes the shape of a predicted outcome
type PredictionType string

const (
	PredictionBinary       PredictionType = "binary"
	PredictionQuantitative PredictionType = "quantitative"
	PredictionQualitative  PredictionType = "qualitative"
)

// Valid reports whether t is empty or a known type
func (t PredictionType) Valid() bool {
	switch t {
	case "", PredictionBinary, PredictionQuantitative, PredictionQualitative:
		return true
	}
	return false
}

// PredictionStatus tracks a prediction group independently of any hypothesis state
type PredictionStatus string

const (
	PredictionUntested     PredictionStatus = "untested"
	PredictionMatched      PredictionStatus = "matched"
	PredictionViolated     PredictionStatus = "violated"
	PredictionInconclusive PredictionStatus = "inconclusive"
)

// Valid reports whether s is a known status
func (s PredictionStatus) Valid() bool {
	switch s {
	case PredictionUntested, PredictionMatched, PredictionViolated, PredictionInconclusive:
		return true
	}
	return false
}

// HypothesisPrediction is what one hypothesis expects under a prediction's condition
type HypothesisPrediction struct {
	HypothesisID  core.HypothesisID `json:"hypothesis_id" validate:"required,hypothesis_id"`
	Outcome       string            `json:"outcome" validate:"required"`
	Type          PredictionType    `json:"type,omitempty" validate:"omitempty,oneof=binary quantitative qualitative"`
	ExpectedValue string            `json:"expected_value,omitempty"`
}

// Prediction pairs a condition with the differing outcomes of two or more hypotheses
type Prediction struct {
	ID                  core.PredictionID      `json:"id" validate:"required,prediction_id"`
	Condition           string                 `json:"condition" validate:"required"`
	Predictions         []HypothesisPrediction `json:"predictions" validate:"required,min=2,dive"`
	DiscriminativePower int                    `json:"discriminative_power" validate:"min=0,max=3"`
	Status              PredictionStatus       `json:"status" validate:"omitempty,oneof=untested matched violated inconclusive"`
}

// HypothesisIDs returns the participating hypotheses in entry order
func (p Prediction) HypothesisIDs() []core.HypothesisID {
	ids := make([]core.HypothesisID, 0, len(p.Predictions))
	for _, entry := range p.Predictions {
		ids = append(ids, entry.HypothesisID)
	}
	return ids
}

// For returns the entry for the given hypothesis
func (p Prediction) For(id core.HypothesisID) (HypothesisPrediction, bool) {
	for _, entry := range p.Predictions {
		if entry.HypothesisID == id {
			return entry, true
		}
	}
	return HypothesisPrediction{}, false
}

// Clone returns a copy that shares no slices with p
func (p Prediction) Clone() Prediction {
	out := p
	out.Predictions = append([]HypothesisPrediction(nil), p.Predictions...)
	return out
}
