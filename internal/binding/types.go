package binding

import (
	"fmt"
	"strings"

	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
	"hypolab/internal/lifecycle"
	"hypolab/internal/polarity"
)

// Action is what the engine recommends doing to a hypothesis
type Action string

const (
	ActionKill     Action = "kill"
	ActionValidate Action = "validate"
	ActionNone     Action = "none"
)

// Trigger maps an action onto the lifecycle trigger that carries it out
func (a Action) Trigger() (hypothesis.Trigger, bool) {
	switch a {
	case ActionKill:
		return hypothesis.TriggerRefute, true
	case ActionValidate:
		return hypothesis.TriggerConfirm, true
	}
	return "", false
}

// ExecutionInput is one observed run of a test
type ExecutionInput struct {
	TestID core.TestID `json:"test_id"`
	// ResultID identifies this run; transitions cite it, falling back to TestID
	ResultID            string                `json:"result_id,omitempty"`
	Result              string                `json:"result"`
	MatchedPredictions  []core.PredictionID   `json:"matched_predictions,omitempty"`
	ViolatedPredictions []core.PredictionID   `json:"violated_predictions,omitempty"`
	Confidence          hypothesis.Confidence `json:"confidence"`
	PotencyCheckPassed  bool                  `json:"potency_check_passed"`
	Notes               string                `json:"notes,omitempty"`
}

// TestResultID is the id transitions cite for this run
func (in ExecutionInput) TestResultID() string {
	if strings.TrimSpace(in.ResultID) != "" {
		return in.ResultID
	}
	return string(in.TestID)
}

// ExecutionError lists every problem found while recording an execution
type ExecutionError struct {
	TestID core.TestID `json:"test_id"`
	Errors []string    `json:"errors"`
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution of %s rejected: %s", e.TestID, strings.Join(e.Errors, "; "))
}

// Verdict is how one hypothesis' predicted outcome compares with the result
type Verdict string

const (
	VerdictMatched   Verdict = "matched"
	VerdictViolated  Verdict = "violated"
	VerdictAmbiguous Verdict = "ambiguous"
)

// Evaluation is the verdict for one hypothesis entry of one prediction
type Evaluation struct {
	PredictionID      core.PredictionID `json:"prediction_id"`
	HypothesisID      core.HypothesisID `json:"hypothesis_id"`
	PredictedOutcome  string            `json:"predicted_outcome"`
	PredictedPolarity polarity.Polarity `json:"predicted_polarity"`
	Verdict           Verdict           `json:"verdict"`
	// Forced is set when the caller listed the whole prediction as violated
	Forced bool `json:"forced,omitempty"`
}

// Tally groups the evaluations of a single hypothesis
type Tally struct {
	HypothesisID core.HypothesisID   `json:"hypothesis_id"`
	Supporting   []core.PredictionID `json:"supporting,omitempty"`
	Violating    []core.PredictionID `json:"violating,omitempty"`
	Ambiguous    []core.PredictionID `json:"ambiguous,omitempty"`
}

// Record is a validated execution with its per-hypothesis polarity verdicts
type Record struct {
	Input          ExecutionInput    `json:"input"`
	ResultPolarity polarity.Polarity `json:"result_polarity"`
	Evaluations    []Evaluation      `json:"evaluations"`
	Tallies        []Tally           `json:"tallies"`
	Warnings       []string          `json:"warnings,omitempty"`
}

// Suggestion is the recommended lifecycle move for one hypothesis
type Suggestion struct {
	HypothesisID          core.HypothesisID     `json:"hypothesis_id"`
	Action                Action                `json:"action"`
	Trigger               hypothesis.Trigger    `json:"trigger,omitempty"`
	Confidence            hypothesis.Confidence `json:"confidence"`
	CurrentState          hypothesis.State      `json:"current_state,omitempty"`
	TestResultID          string                `json:"test_result_id"`
	SupportingPredictions []core.PredictionID   `json:"supporting_predictions,omitempty"`
	ViolatingPredictions  []core.PredictionID   `json:"violating_predictions,omitempty"`
	AmbiguousPredictions  []core.PredictionID   `json:"ambiguous_predictions,omitempty"`
	Feasible              bool                  `json:"feasible"`
	BlockedReason         string                `json:"blocked_reason,omitempty"`
	Rationale             string                `json:"rationale"`
}

// ApplyOptions filters which suggestions are carried out
type ApplyOptions struct {
	// MinConfidence skips suggestions below this level; empty applies all
	MinConfidence hypothesis.Confidence `json:"min_confidence,omitempty"`
	// KillsOnly applies kill suggestions and skips validations
	KillsOnly bool `json:"kills_only,omitempty"`
	// Store receives every applied transition when set
	Store *lifecycle.HistoryStore `json:"-"`
	Clock core.Clock              `json:"-"`
}

// Validate rejects a minimum confidence that is not on the ladder
func (o ApplyOptions) Validate() error {
	if o.MinConfidence != "" && !o.MinConfidence.Valid() {
		return fmt.Errorf("min_confidence %q is not one of high, medium, low, speculative", o.MinConfidence)
	}
	return nil
}

// Applied is a suggestion that went through the lifecycle
type Applied struct {
	HypothesisID core.HypothesisID     `json:"hypothesis_id"`
	Action       Action                `json:"action"`
	Hypothesis   hypothesis.Hypothesis `json:"hypothesis"`
	Transition   hypothesis.Transition `json:"transition"`
}

// Failure is a suggestion the lifecycle refused
type Failure struct {
	HypothesisID core.HypothesisID           `json:"hypothesis_id"`
	Action       Action                      `json:"action"`
	Message      string                      `json:"message"`
	Transition   *lifecycle.TransitionError `json:"transition_error,omitempty"`
}

// Skipped is a suggestion filtered out before reaching the lifecycle
type Skipped struct {
	HypothesisID core.HypothesisID `json:"hypothesis_id"`
	Action       Action            `json:"action"`
	Reason       string            `json:"reason"`
}

// ApplyResult reports the per-hypothesis outcome of applying suggestions
type ApplyResult struct {
	Hypotheses map[core.HypothesisID]hypothesis.Hypothesis `json:"hypotheses"`
	Applied    []Applied                                   `json:"applied,omitempty"`
	Failed     []Failure                                   `json:"failed,omitempty"`
	Skipped    []Skipped                                   `json:"skipped,omitempty"`
}

// ProcessOptions controls ProcessTestExecution
type ProcessOptions struct {
	Apply        bool         `json:"apply"`
	ApplyOptions ApplyOptions `json:"apply_options"`
}

// ProcessResult is the output of the full record, suggest, apply pipeline
type ProcessResult struct {
	Record      Record       `json:"record"`
	Suggestions []Suggestion `json:"suggestions"`
	Applied     *ApplyResult `json:"applied,omitempty"`
}
