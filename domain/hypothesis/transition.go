package hypothesis

import (
	"time"

	"hypolab/domain/core"
)

// Transition is the immutable record of one lifecycle change
type Transition struct {
	ID                core.ID           `json:"id" validate:"required"`
	HypothesisID      core.HypothesisID `json:"hypothesis_id" validate:"required,hypothesis_id"`
	FromState         State             `json:"from_state" validate:"required,oneof=proposed active confirmed refuted superseded deferred"`
	ToState           State             `json:"to_state" validate:"required,oneof=proposed active confirmed refuted superseded deferred"`
	Trigger           Trigger           `json:"trigger" validate:"required,oneof=activate refute confirm supersede defer reactivate"`
	TestResultID      string            `json:"test_result_id,omitempty"`
	ChildHypothesisID core.HypothesisID `json:"child_hypothesis_id,omitempty" validate:"omitempty,hypothesis_id"`
	Reason            string            `json:"reason,omitempty"`
	Timestamp         time.Time         `json:"timestamp" validate:"required"`
}
