// Package hypothesis holds the records exchanged between the lifecycle,
// binding and scoring engines. Values are treated as immutable: engines
// return modified copies instead of mutating their inputs.
package hypothesis

import (
	"time"

	"hypolab/domain/core"
)

// Category classifies what kind of explanation a hypothesis offers
type Category string

const (
	CategoryMechanistic      Category = "mechanistic"
	CategoryPhenomenological Category = "phenomenological"
	CategoryBoundary         Category = "boundary"
	CategoryAuxiliary        Category = "auxiliary"
	CategoryThirdAlternative Category = "third_alternative"
)

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case CategoryMechanistic, CategoryPhenomenological, CategoryBoundary,
		CategoryAuxiliary, CategoryThirdAlternative:
		return true
	}
	return false
}

// Confidence is an ordinal belief level, ordered high > medium > low > speculative
type Confidence string

const (
	ConfidenceHigh        Confidence = "high"
	ConfidenceMedium      Confidence = "medium"
	ConfidenceLow         Confidence = "low"
	ConfidenceSpeculative Confidence = "speculative"
)

// confidenceLadder lists levels from least to most certain
var confidenceLadder = []Confidence{
	ConfidenceSpeculative,
	ConfidenceLow,
	ConfidenceMedium,
	ConfidenceHigh,
}

// Rank returns the position on the ladder (speculative=0 … high=3), or -1 if unknown
func (c Confidence) Rank() int {
	for i, level := range confidenceLadder {
		if level == c {
			return i
		}
	}
	return -1
}

// Valid reports whether c is a known confidence level
func (c Confidence) Valid() bool {
	return c.Rank() >= 0
}

// Step moves n levels toward high (n > 0) or speculative (n < 0), clamped at both ends.
// Unknown levels are returned unchanged.
func (c Confidence) Step(n int) Confidence {
	rank := c.Rank()
	if rank < 0 {
		return c
	}
	rank += n
	if rank < 0 {
		rank = 0
	}
	if rank >= len(confidenceLadder) {
		rank = len(confidenceLadder) - 1
	}
	return confidenceLadder[rank]
}

// AtLeast reports whether c is at or above min on the ladder
func (c Confidence) AtLeast(min Confidence) bool {
	return c.Rank() >= min.Rank()
}

// State is a lifecycle state
type State string

const (
	StateProposed   State = "proposed"
	StateActive     State = "active"
	StateConfirmed  State = "confirmed"
	StateRefuted    State = "refuted"
	StateSuperseded State = "superseded"
	StateDeferred   State = "deferred"
)

// States lists every lifecycle state in declaration order
var States = []State{
	StateProposed, StateActive, StateConfirmed, StateRefuted, StateSuperseded, StateDeferred,
}

// Valid reports whether s is a known state
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// Trigger names the event that moves a hypothesis between states
type Trigger string

const (
	TriggerActivate   Trigger = "activate"
	TriggerRefute     Trigger = "refute"
	TriggerConfirm    Trigger = "confirm"
	TriggerSupersede  Trigger = "supersede"
	TriggerDefer      Trigger = "defer"
	TriggerReactivate Trigger = "reactivate"
)

// Triggers lists every trigger in declaration order
var Triggers = []Trigger{
	TriggerActivate, TriggerRefute, TriggerConfirm, TriggerSupersede, TriggerDefer, TriggerReactivate,
}

// Valid reports whether t is a known trigger
func (t Trigger) Valid() bool {
	for _, known := range Triggers {
		if t == known {
			return true
		}
	}
	return false
}

// Provenance records where a hypothesis came from in the session transcript
type Provenance struct {
	Anchors     []core.Anchor `json:"anchors,omitempty" validate:"dive,anchor"`
	IsInference bool          `json:"is_inference"`
}

// Hypothesis is a candidate explanation tracked through the kill/confirm lifecycle
type Hypothesis struct {
	ID         core.HypothesisID `json:"id" validate:"required,hypothesis_id"`
	SessionID  string            `json:"session_id" validate:"required,session"`
	Statement  string            `json:"statement" validate:"required"`
	Mechanism  string            `json:"mechanism,omitempty"`
	Category   Category          `json:"category" validate:"required,oneof=mechanistic phenomenological boundary auxiliary third_alternative"`
	Confidence Confidence        `json:"confidence" validate:"required,oneof=high medium low speculative"`
	State      State             `json:"state" validate:"required,oneof=proposed active confirmed refuted superseded deferred"`
	Provenance Provenance        `json:"provenance"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Clone returns a copy that shares no slices with h
func (h Hypothesis) Clone() Hypothesis {
	out := h
	if h.Provenance.Anchors != nil {
		out.Provenance.Anchors = append([]core.Anchor(nil), h.Provenance.Anchors...)
	}
	return out
}

// Live reports whether the hypothesis is still in play (not refuted or superseded)
func (h Hypothesis) Live() bool {
	return h.State != StateRefuted && h.State != StateSuperseded
}
