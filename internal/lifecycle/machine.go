// Package lifecycle implements the hypothesis state machine and the
// append-only transition history that records its moves.
package lifecycle

import (
	"fmt"
	"strings"

	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
)

// FailureCode tags why a transition was refused
type FailureCode string

const (
	CodeInvalidTransition      FailureCode = "INVALID_TRANSITION"
	CodeMissingTestResult      FailureCode = "MISSING_TEST_RESULT"
	CodeMissingChildHypothesis FailureCode = "MISSING_CHILD_HYPOTHESIS"
	CodeTerminalState          FailureCode = "TERMINAL_STATE"
)

// edge is one legal move out of a state
type edge struct {
	trigger hypothesis.Trigger
	target  hypothesis.State
}

// transitionTable lists the only legal edges, in the order they are reported to callers
var transitionTable = map[hypothesis.State][]edge{
	hypothesis.StateProposed: {
		{hypothesis.TriggerActivate, hypothesis.StateActive},
		{hypothesis.TriggerDefer, hypothesis.StateDeferred},
	},
	hypothesis.StateActive: {
		{hypothesis.TriggerRefute, hypothesis.StateRefuted},
		{hypothesis.TriggerConfirm, hypothesis.StateConfirmed},
		{hypothesis.TriggerSupersede, hypothesis.StateSuperseded},
		{hypothesis.TriggerDefer, hypothesis.StateDeferred},
	},
	hypothesis.StateConfirmed: {
		{hypothesis.TriggerSupersede, hypothesis.StateSuperseded},
		{hypothesis.TriggerRefute, hypothesis.StateRefuted},
	},
	hypothesis.StateDeferred: {
		{hypothesis.TriggerReactivate, hypothesis.StateActive},
	},
	hypothesis.StateRefuted:    nil,
	hypothesis.StateSuperseded: nil,
}

// IsTerminal reports whether no trigger leaves the state
func IsTerminal(s hypothesis.State) bool {
	return s == hypothesis.StateRefuted || s == hypothesis.StateSuperseded
}

// ValidTriggers returns the triggers accepted from s in table order
func ValidTriggers(s hypothesis.State) []hypothesis.Trigger {
	edges := transitionTable[s]
	triggers := make([]hypothesis.Trigger, 0, len(edges))
	for _, e := range edges {
		triggers = append(triggers, e.trigger)
	}
	return triggers
}

// Target returns the state reached by firing trigger from s
func Target(s hypothesis.State, trigger hypothesis.Trigger) (hypothesis.State, bool) {
	for _, e := range transitionTable[s] {
		if e.trigger == trigger {
			return e.target, true
		}
	}
	return "", false
}

// RequiresTestResult reports whether the trigger must cite a test result
func RequiresTestResult(trigger hypothesis.Trigger) bool {
	return trigger == hypothesis.TriggerRefute || trigger == hypothesis.TriggerConfirm
}

// RequiresChildHypothesis reports whether the trigger must name a successor hypothesis
func RequiresChildHypothesis(trigger hypothesis.Trigger) bool {
	return trigger == hypothesis.TriggerSupersede
}

// TransitionError is the tagged failure returned when a transition is refused.
// It carries the attempted trigger and both states so callers can branch on it.
type TransitionError struct {
	Code          FailureCode          `json:"code"`
	HypothesisID  core.HypothesisID    `json:"hypothesis_id"`
	Trigger       hypothesis.Trigger   `json:"trigger"`
	From          hypothesis.State     `json:"from_state"`
	To            hypothesis.State     `json:"to_state,omitempty"`
	ValidTriggers []hypothesis.Trigger `json:"valid_triggers"`
	Message       string               `json:"message"`
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Options carries the references and metadata attached to a transition
type Options struct {
	TestResultID      string
	ChildHypothesisID core.HypothesisID
	Reason            string
	Clock             core.Clock
}

// Outcome is the successful result of a transition
type Outcome struct {
	Hypothesis hypothesis.Hypothesis  `json:"hypothesis"`
	Transition hypothesis.Transition `json:"transition"`
}

// Transition fires trigger on h. It never mutates h: on success it returns an
// updated copy and the transition record; on failure it returns a *TransitionError.
func Transition(h hypothesis.Hypothesis, trigger hypothesis.Trigger, opts Options) (Outcome, error) {
	from := h.State
	fail := func(code FailureCode, to hypothesis.State, msg string) (Outcome, error) {
		return Outcome{}, &TransitionError{
			Code:          code,
			HypothesisID:  h.ID,
			Trigger:       trigger,
			From:          from,
			To:            to,
			ValidTriggers: ValidTriggers(from),
			Message:       msg,
		}
	}

	if IsTerminal(from) {
		return fail(CodeTerminalState, "",
			fmt.Sprintf("hypothesis %s is %s; no transitions leave a terminal state", h.ID, from))
	}

	to, ok := Target(from, trigger)
	if !ok {
		return fail(CodeInvalidTransition, "",
			fmt.Sprintf("cannot %s a hypothesis in state %s; valid triggers: %s",
				trigger, from, joinTriggers(ValidTriggers(from))))
	}

	if RequiresTestResult(trigger) && strings.TrimSpace(opts.TestResultID) == "" {
		return fail(CodeMissingTestResult, to,
			fmt.Sprintf("%s requires a test result id", trigger))
	}
	if RequiresChildHypothesis(trigger) && strings.TrimSpace(string(opts.ChildHypothesisID)) == "" {
		return fail(CodeMissingChildHypothesis, to,
			fmt.Sprintf("%s requires a child hypothesis id", trigger))
	}
	if opts.ChildHypothesisID != "" && !opts.ChildHypothesisID.Valid() {
		return fail(CodeMissingChildHypothesis, to,
			fmt.Sprintf("child hypothesis id %q is malformed", opts.ChildHypothesisID))
	}

	now := opts.Clock.Or()()
	next := h.Clone()
	next.State = to
	next.UpdatedAt = now

	record := hypothesis.Transition{
		ID:           core.NewID(),
		HypothesisID: h.ID,
		FromState:    from,
		ToState:      to,
		Trigger:      trigger,
		Reason:       opts.Reason,
		Timestamp:    now,
	}
	if RequiresTestResult(trigger) || opts.TestResultID != "" {
		record.TestResultID = opts.TestResultID
	}
	if RequiresChildHypothesis(trigger) || opts.ChildHypothesisID != "" {
		record.ChildHypothesisID = opts.ChildHypothesisID
	}

	return Outcome{Hypothesis: next, Transition: record}, nil
}

// Replay folds a chronological history onto initial, re-checking every edge.
// Transitions belonging to other hypotheses are rejected.
func Replay(initial hypothesis.Hypothesis, history []hypothesis.Transition) (hypothesis.Hypothesis, error) {
	current := initial.Clone()
	for i, tr := range history {
		if tr.HypothesisID != current.ID {
			return current, fmt.Errorf("replay %s: transition %d belongs to %s", current.ID, i, tr.HypothesisID)
		}
		if tr.FromState != current.State {
			return current, fmt.Errorf("replay %s: transition %d starts at %s but hypothesis is %s",
				current.ID, i, tr.FromState, current.State)
		}
		out, err := Transition(current, tr.Trigger, Options{
			TestResultID:      tr.TestResultID,
			ChildHypothesisID: tr.ChildHypothesisID,
			Reason:            tr.Reason,
			Clock:             core.FixedClock(tr.Timestamp),
		})
		if err != nil {
			return current, fmt.Errorf("replay %s: transition %d: %w", current.ID, i, err)
		}
		if out.Hypothesis.State != tr.ToState {
			return current, fmt.Errorf("replay %s: transition %d ends at %s, table says %s",
				current.ID, i, tr.ToState, out.Hypothesis.State)
		}
		current = out.Hypothesis
	}
	return current, nil
}

func joinTriggers(triggers []hypothesis.Trigger) string {
	if len(triggers) == 0 {
		return "none"
	}
	names := make([]string, len(triggers))
	for i, t := range triggers {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// validateRecord checks a stored transition against the table and reference rules
func validateRecord(tr hypothesis.Transition) error {
	if !tr.HypothesisID.Valid() {
		return fmt.Errorf("hypothesis id %q is malformed", tr.HypothesisID)
	}
	if !tr.FromState.Valid() || !tr.ToState.Valid() {
		return fmt.Errorf("unknown state %q -> %q", tr.FromState, tr.ToState)
	}
	if !tr.Trigger.Valid() {
		return fmt.Errorf("unknown trigger %q", tr.Trigger)
	}
	to, ok := Target(tr.FromState, tr.Trigger)
	if !ok || to != tr.ToState {
		return fmt.Errorf("%s -(%s)-> %s is not a legal transition", tr.FromState, tr.Trigger, tr.ToState)
	}
	if RequiresTestResult(tr.Trigger) && strings.TrimSpace(tr.TestResultID) == "" {
		return fmt.Errorf("%s transition without test result id", tr.Trigger)
	}
	if (RequiresChildHypothesis(tr.Trigger) || tr.ChildHypothesisID != "") && !tr.ChildHypothesisID.Valid() {
		return fmt.Errorf("%s transition with malformed child hypothesis id %q", tr.Trigger, tr.ChildHypothesisID)
	}
	if tr.Timestamp.IsZero() {
		return fmt.Errorf("transition has no timestamp")
	}
	return nil
}

// ValidateRecord exposes the import-time checks for callers that persist transitions
func ValidateRecord(tr hypothesis.Transition) error {
	return validateRecord(tr)
}
