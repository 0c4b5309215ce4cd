package binding

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
	"hypolab/internal/lifecycle"
	"hypolab/internal/polarity"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	test        hypothesis.TestRecord
	predictions []hypothesis.Prediction
	hypotheses  map[core.HypothesisID]hypothesis.Hypothesis
}

func newFixture() fixture {
	h := func(id core.HypothesisID, statement string) hypothesis.Hypothesis {
		return hypothesis.Hypothesis{
			ID:         id,
			SessionID:  "RS1",
			Statement:  statement,
			Category:   hypothesis.CategoryMechanistic,
			Confidence: hypothesis.ConfidenceMedium,
			State:      hypothesis.StateActive,
			CreatedAt:  epoch,
			UpdatedAt:  epoch,
		}
	}
	return fixture{
		test: hypothesis.TestRecord{
			ID:                   "T-RS1-001",
			Procedure:            "Assay for the effect under knockdown",
			DiscriminatesBetween: []core.HypothesisID{"H-RS1-001", "H-RS1-002"},
			ExpectedOutcomes: []hypothesis.ExpectedOutcome{
				{HypothesisID: "H-RS1-001", Outcome: "Effect present"},
				{HypothesisID: "H-RS1-002", Outcome: "Effect absent"},
			},
		},
		predictions: []hypothesis.Prediction{
			{
				ID:        "P-RS1-001",
				Condition: "After knockdown",
				Predictions: []hypothesis.HypothesisPrediction{
					{HypothesisID: "H-RS1-001", Outcome: "Effect present"},
					{HypothesisID: "H-RS1-002", Outcome: "Effect absent"},
				},
				DiscriminativePower: 3,
			},
			{
				ID:        "P-RS1-002",
				Condition: "Under rescue",
				Predictions: []hypothesis.HypothesisPrediction{
					{HypothesisID: "H-RS1-001", Outcome: "Rescue restores the effect"},
					{HypothesisID: "H-RS1-002", Outcome: "Rescue changes nothing"},
				},
			},
		},
		hypotheses: map[core.HypothesisID]hypothesis.Hypothesis{
			"H-RS1-001": h("H-RS1-001", "Gene X drives the effect"),
			"H-RS1-002": h("H-RS1-002", "The effect is independent of gene X"),
		},
	}
}

func validInput() ExecutionInput {
	return ExecutionInput{
		TestID:             "T-RS1-001",
		Result:             "Effect absent — negative result observed",
		MatchedPredictions: []core.PredictionID{"P-RS1-001"},
		Confidence:         hypothesis.ConfidenceHigh,
		PotencyCheckPassed: true,
	}
}

func TestProcessTestExecutionKillsAndValidates(t *testing.T) {
	f := newFixture()
	store := lifecycle.NewHistoryStore()
	engine := NewEngine(nil, nil)

	result, err := engine.ProcessTestExecution(validInput(), f.test, f.predictions, f.hypotheses, ProcessOptions{
		Apply: true,
		ApplyOptions: ApplyOptions{
			Store: store,
			Clock: core.FixedClock(epoch.Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, polarity.Negative, result.Record.ResultPolarity)

	require.Len(t, result.Suggestions, 2)
	kill, validate := result.Suggestions[0], result.Suggestions[1]
	assert.Equal(t, core.HypothesisID("H-RS1-001"), kill.HypothesisID)
	assert.Equal(t, ActionKill, kill.Action)
	assert.Equal(t, hypothesis.TriggerRefute, kill.Trigger)
	assert.Equal(t, []core.PredictionID{"P-RS1-001"}, kill.ViolatingPredictions)
	assert.True(t, kill.Feasible)
	assert.Equal(t, core.HypothesisID("H-RS1-002"), validate.HypothesisID)
	assert.Equal(t, ActionValidate, validate.Action)
	assert.Equal(t, hypothesis.ConfidenceHigh, validate.Confidence)

	require.NotNil(t, result.Applied)
	assert.Len(t, result.Applied.Applied, 2)
	assert.Empty(t, result.Applied.Failed)
	assert.Equal(t, hypothesis.StateRefuted, result.Applied.Hypotheses["H-RS1-001"].State)
	assert.Equal(t, hypothesis.StateConfirmed, result.Applied.Hypotheses["H-RS1-002"].State)
	assert.Equal(t, hypothesis.StateActive, f.hypotheses["H-RS1-001"].State, "input map is untouched")

	cited := store.ByTestResult("T-RS1-001")
	assert.Len(t, cited, 2)
	latest, ok := store.Latest("H-RS1-001")
	require.True(t, ok)
	assert.Equal(t, hypothesis.StateActive, latest.FromState)
	assert.Equal(t, hypothesis.StateRefuted, latest.ToState)
}

func TestRecordExecutionRejectsBadInput(t *testing.T) {
	f := newFixture()
	engine := NewEngine(nil, nil)

	tests := []struct {
		name   string
		mutate func(*ExecutionInput)
		want   string
	}{
		{"malformed test id", func(in *ExecutionInput) { in.TestID = "T1" }, "malformed"},
		{"other test", func(in *ExecutionInput) { in.TestID = "T-RS1-002" }, "does not match"},
		{"empty result", func(in *ExecutionInput) { in.Result = "  " }, "result is required"},
		{"bad confidence", func(in *ExecutionInput) { in.Confidence = "certain" }, "confidence"},
		{"no predictions", func(in *ExecutionInput) { in.MatchedPredictions = nil }, "at least one"},
		{"unknown prediction", func(in *ExecutionInput) {
			in.MatchedPredictions = []core.PredictionID{"P-RS1-404"}
		}, "does not exist"},
		{"duplicate", func(in *ExecutionInput) {
			in.MatchedPredictions = []core.PredictionID{"P-RS1-001", "P-RS1-001"}
		}, "appears twice"},
		{"both lists", func(in *ExecutionInput) {
			in.ViolatedPredictions = []core.PredictionID{"P-RS1-001"}
		}, "both matched and violated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := engine.RecordExecution(in, f.test, f.predictions)
			require.Error(t, err)

			var execErr *ExecutionError
			require.True(t, errors.As(err, &execErr))
			assert.Contains(t, execErr.Error(), tt.want)
		})
	}
}

func TestRecordExecutionCollectsAllErrors(t *testing.T) {
	f := newFixture()
	in := ExecutionInput{TestID: "bogus"}
	_, err := NewEngine(nil, nil).RecordExecution(in, f.test, f.predictions)

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.GreaterOrEqual(t, len(execErr.Errors), 4)
}

func TestViolatedPredictionsAreForced(t *testing.T) {
	f := newFixture()
	in := validInput()
	in.MatchedPredictions = nil
	in.ViolatedPredictions = []core.PredictionID{"P-RS1-002"}

	rec, err := NewEngine(nil, nil).RecordExecution(in, f.test, f.predictions)
	require.NoError(t, err)
	require.Len(t, rec.Evaluations, 2)
	for _, ev := range rec.Evaluations {
		assert.Equal(t, VerdictViolated, ev.Verdict)
		assert.True(t, ev.Forced)
	}

	suggestions := NewEngine(nil, nil).Suggest(rec, f.hypotheses)
	require.Len(t, suggestions, 2)
	for _, s := range suggestions {
		assert.Equal(t, ActionKill, s.Action)
	}
}

func TestViolationTakesPrecedenceOverSupport(t *testing.T) {
	f := newFixture()
	in := validInput()
	in.ViolatedPredictions = []core.PredictionID{"P-RS1-002"}

	engine := NewEngine(nil, nil)
	rec, err := engine.RecordExecution(in, f.test, f.predictions)
	require.NoError(t, err)

	suggestions := engine.Suggest(rec, f.hypotheses)
	require.Len(t, suggestions, 2)
	h2 := suggestions[1]
	assert.Equal(t, core.HypothesisID("H-RS1-002"), h2.HypothesisID)
	assert.Equal(t, []core.PredictionID{"P-RS1-001"}, h2.SupportingPredictions)
	assert.Equal(t, ActionKill, h2.Action, "one violation outweighs any support")
}

func TestAmbiguousResultSuggestsNothing(t *testing.T) {
	f := newFixture()
	in := validInput()
	in.Result = "Readout was noisy"

	engine := NewEngine(nil, nil)
	result, err := engine.ProcessTestExecution(in, f.test, f.predictions, f.hypotheses, ProcessOptions{Apply: true})
	require.NoError(t, err)
	assert.Equal(t, polarity.Ambiguous, result.Record.ResultPolarity)
	assert.NotEmpty(t, result.Record.Warnings)

	for _, s := range result.Suggestions {
		assert.Equal(t, ActionNone, s.Action)
		assert.False(t, s.Feasible)
		assert.NotEmpty(t, s.AmbiguousPredictions)
	}
	assert.Empty(t, result.Applied.Applied)
	assert.Len(t, result.Applied.Skipped, 2)
}

func TestConfidenceDerivation(t *testing.T) {
	tests := []struct {
		name    string
		input   hypothesis.Confidence
		potency bool
		support int
		want    hypothesis.Confidence
	}{
		{"unchanged", hypothesis.ConfidenceMedium, true, 1, hypothesis.ConfidenceMedium},
		{"failed potency drops two", hypothesis.ConfidenceHigh, false, 1, hypothesis.ConfidenceLow},
		{"clamped at speculative", hypothesis.ConfidenceLow, false, 1, hypothesis.ConfidenceSpeculative},
		{"strong support raises", hypothesis.ConfidenceMedium, true, 3, hypothesis.ConfidenceHigh},
		{"clamped at high", hypothesis.ConfidenceHigh, true, 5, hypothesis.ConfidenceHigh},
		{"both adjustments", hypothesis.ConfidenceHigh, false, 3, hypothesis.ConfidenceMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ExecutionInput{Confidence: tt.input, PotencyCheckPassed: tt.potency}
			assert.Equal(t, tt.want, deriveConfidence(in, tt.support))
		})
	}
}

func TestFailedPotencyWarnsAndLowersConfidence(t *testing.T) {
	f := newFixture()
	in := validInput()
	in.PotencyCheckPassed = false

	engine := NewEngine(nil, nil)
	rec, err := engine.RecordExecution(in, f.test, f.predictions)
	require.NoError(t, err)
	assert.Contains(t, rec.Warnings[0], "potency check failed")

	for _, s := range engine.Suggest(rec, f.hypotheses) {
		assert.Equal(t, hypothesis.ConfidenceLow, s.Confidence)
	}
}

func TestSuggestFeasibilityByState(t *testing.T) {
	tests := []struct {
		state    hypothesis.State
		action   Action
		feasible bool
		reason   string
	}{
		{hypothesis.StateActive, ActionKill, true, ""},
		{hypothesis.StateConfirmed, ActionKill, true, ""},
		{hypothesis.StateProposed, ActionKill, false, "activate"},
		{hypothesis.StateDeferred, ActionKill, false, "reactivate"},
		{hypothesis.StateRefuted, ActionKill, false, "already refuted"},
		{hypothesis.StateSuperseded, ActionKill, false, "superseded"},
		{hypothesis.StateActive, ActionValidate, true, ""},
		{hypothesis.StateConfirmed, ActionValidate, false, "already confirmed"},
		{hypothesis.StateProposed, ActionValidate, false, "only active"},
	}
	for _, tt := range tests {
		t.Run(string(tt.action)+"/"+string(tt.state), func(t *testing.T) {
			h := hypothesis.Hypothesis{ID: "H-RS1-001", State: tt.state}
			ok, reason := feasibility(tt.action, h.ID, h, true)
			assert.Equal(t, tt.feasible, ok)
			if tt.reason != "" {
				assert.Contains(t, reason, tt.reason)
			}
		})
	}

	ok, reason := feasibility(ActionKill, "H-RS1-404", hypothesis.Hypothesis{}, false)
	assert.False(t, ok)
	assert.Equal(t, "hypothesis H-RS1-404 not found", reason)
}

func TestApplyFilters(t *testing.T) {
	f := newFixture()
	engine := NewEngine(nil, nil)
	rec, err := engine.RecordExecution(validInput(), f.test, f.predictions)
	require.NoError(t, err)
	suggestions := engine.Suggest(rec, f.hypotheses)

	t.Run("kills only", func(t *testing.T) {
		res := engine.Apply(suggestions, f.hypotheses, ApplyOptions{KillsOnly: true})
		require.Len(t, res.Applied, 1)
		assert.Equal(t, ActionKill, res.Applied[0].Action)
		require.Len(t, res.Skipped, 1)
		assert.Equal(t, "kills-only mode", res.Skipped[0].Reason)
		assert.Equal(t, hypothesis.StateActive, res.Hypotheses["H-RS1-002"].State)
	})

	t.Run("min confidence", func(t *testing.T) {
		lowered := make([]Suggestion, len(suggestions))
		copy(lowered, suggestions)
		lowered[0].Confidence = hypothesis.ConfidenceLow
		res := engine.Apply(lowered, f.hypotheses, ApplyOptions{MinConfidence: hypothesis.ConfidenceMedium})
		require.Len(t, res.Applied, 1)
		assert.Equal(t, core.HypothesisID("H-RS1-002"), res.Applied[0].HypothesisID)
		require.Len(t, res.Skipped, 1)
		assert.Contains(t, res.Skipped[0].Reason, "below minimum")
	})

	t.Run("unknown min confidence applies nothing", func(t *testing.T) {
		for _, level := range []hypothesis.Confidence{"HIGH", "hgih"} {
			opts := ApplyOptions{MinConfidence: level}
			assert.Error(t, opts.Validate())

			res := engine.Apply(suggestions, f.hypotheses, opts)
			assert.Empty(t, res.Applied, level)
			require.Len(t, res.Skipped, len(suggestions))
			assert.Contains(t, res.Skipped[0].Reason, "unknown minimum confidence")
			assert.Equal(t, hypothesis.StateActive, res.Hypotheses["H-RS1-001"].State)
		}
		assert.NoError(t, ApplyOptions{MinConfidence: hypothesis.ConfidenceHigh}.Validate())
		assert.NoError(t, ApplyOptions{}.Validate())
	})
}

func TestApplyReportsLifecycleRefusal(t *testing.T) {
	f := newFixture()
	engine := NewEngine(nil, nil)

	// a stale suggestion computed before H-RS1-001 was refuted elsewhere
	suggestions := []Suggestion{{
		HypothesisID: "H-RS1-001",
		Action:       ActionKill,
		Trigger:      hypothesis.TriggerRefute,
		Confidence:   hypothesis.ConfidenceHigh,
		TestResultID: "T-RS1-001",
		Feasible:     true,
	}}
	refuted := f.hypotheses["H-RS1-001"]
	refuted.State = hypothesis.StateRefuted
	f.hypotheses["H-RS1-001"] = refuted

	res := engine.Apply(suggestions, f.hypotheses, ApplyOptions{})
	assert.Empty(t, res.Applied)
	require.Len(t, res.Failed, 1)
	require.NotNil(t, res.Failed[0].Transition)
	assert.Equal(t, lifecycle.CodeTerminalState, res.Failed[0].Transition.Code)
}

func TestCustomClassifier(t *testing.T) {
	f := newFixture()
	always := polarity.ClassifierFunc(func(text string) polarity.Polarity {
		if text == "Effect present" {
			return polarity.Positive
		}
		return polarity.Negative
	})
	in := validInput()
	in.Result = "Effect present"

	engine := NewEngine(always, nil)
	rec, err := engine.RecordExecution(in, f.test, f.predictions)
	require.NoError(t, err)

	suggestions := engine.Suggest(rec, f.hypotheses)
	require.Len(t, suggestions, 2)
	assert.Equal(t, ActionValidate, suggestions[0].Action)
	assert.Equal(t, ActionKill, suggestions[1].Action)
}

func TestOutsideTestWarning(t *testing.T) {
	f := newFixture()
	f.test.DiscriminatesBetween = []core.HypothesisID{"H-RS1-001"}

	rec, err := NewEngine(nil, nil).RecordExecution(validInput(), f.test, f.predictions)
	require.NoError(t, err)
	require.Len(t, rec.Warnings, 1)
	assert.Contains(t, rec.Warnings[0], "H-RS1-002")
}
