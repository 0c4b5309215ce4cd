package hypothesis

import (
	"time"

	"hypolab/domain/core"
)

// AssumptionStatus tracks whether an assumption has been checked
type AssumptionStatus string

const (
	AssumptionUnchecked AssumptionStatus = "unchecked"
	AssumptionVerified  AssumptionStatus = "verified"
	AssumptionFalsified AssumptionStatus = "falsified"
)

// Valid reports whether s is a known assumption status
func (s AssumptionStatus) Valid() bool {
	switch s {
	case AssumptionUnchecked, AssumptionVerified, AssumptionFalsified:
		return true
	}
	return false
}

// Assumption is a premise one or more hypotheses rest on
type Assumption struct {
	ID            core.AssumptionID   `json:"id" validate:"required,assumption_id"`
	Statement     string              `json:"statement" validate:"required"`
	HypothesisIDs []core.HypothesisID `json:"hypothesis_ids,omitempty" validate:"dive,hypothesis_id"`
	Status        AssumptionStatus    `json:"status" validate:"required,oneof=unchecked verified falsified"`
}

// Critique is an adversarial attack on a hypothesis
type Critique struct {
	HypothesisID core.HypothesisID `json:"hypothesis_id" validate:"required,hypothesis_id"`
	Author       string            `json:"author,omitempty"`
	Attack       string            `json:"attack" validate:"required"`
	Anchors      []core.Anchor     `json:"anchors,omitempty" validate:"dive,anchor"`
	CreatedAt    time.Time         `json:"created_at"`
}
