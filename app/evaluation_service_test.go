package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypolab/adapters/postgres"
	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
	"hypolab/internal/binding"
	"hypolab/internal/config"
	apperrors "hypolab/internal/errors"
	"hypolab/internal/lifecycle"
	"hypolab/internal/scorecard"
	"hypolab/internal/session"
	"hypolab/internal/validation"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func bundle() validation.Bundle {
	h := func(id core.HypothesisID, statement string, category hypothesis.Category) hypothesis.Hypothesis {
		return hypothesis.Hypothesis{
			ID:         id,
			SessionID:  "RS1",
			Statement:  statement,
			Category:   category,
			Confidence: hypothesis.ConfidenceMedium,
			State:      hypothesis.StateActive,
			Provenance: hypothesis.Provenance{Anchors: []core.Anchor{"§1"}},
			CreatedAt:  epoch,
			UpdatedAt:  epoch,
		}
	}
	return validation.Bundle{
		Hypotheses: []hypothesis.Hypothesis{
			h("H-RS1-001", "Gene X drives the effect", hypothesis.CategoryMechanistic),
			h("H-RS1-002", "The effect is independent of gene X", hypothesis.CategoryThirdAlternative),
		},
		Predictions: []hypothesis.Prediction{{
			ID:        "P-RS1-001",
			Condition: "After knockdown",
			Predictions: []hypothesis.HypothesisPrediction{
				{HypothesisID: "H-RS1-001", Outcome: "Effect present"},
				{HypothesisID: "H-RS1-002", Outcome: "Effect absent"},
			},
		}},
		Tests: []hypothesis.TestRecord{{
			ID:                   "T-RS1-001",
			Procedure:            "Assay for the effect under knockdown",
			DiscriminatesBetween: []core.HypothesisID{"H-RS1-001", "H-RS1-002"},
			ExpectedOutcomes: []hypothesis.ExpectedOutcome{
				{HypothesisID: "H-RS1-001", Outcome: "Effect present"},
				{HypothesisID: "H-RS1-002", Outcome: "Effect absent"},
			},
			PotencyCheck:    &hypothesis.PotencyCheck{PositiveControl: "Known inducer lane"},
			EvidencePerWeek: hypothesis.EvidencePerWeekScore{LikelihoodRatio: 2, Cost: 2, Speed: 2, Ambiguity: 2},
		}},
	}
}

func execution() binding.ExecutionInput {
	return binding.ExecutionInput{
		TestID:             "T-RS1-001",
		ResultID:           "T-RS1-001:run1",
		Result:             "Effect absent, negative result observed",
		MatchedPredictions: []core.PredictionID{"P-RS1-001"},
		Confidence:         hypothesis.ConfidenceHigh,
		PotencyCheckPassed: true,
	}
}

func newService(t *testing.T, opts ...Option) *EvaluationService {
	t.Helper()
	opts = append([]Option{WithClock(core.FixedClock(epoch.Add(time.Hour)))}, opts...)
	svc := NewEvaluationService(config.DefaultPolicy(), opts...)
	_, err := svc.Register(context.Background(), "RS1", RegisterRequest{Paradox: "Knockdown removes the effect only in vivo", Bundle: bundle()})
	require.NoError(t, err)
	return svc
}

func TestRegisterRejectsInvalidBundle(t *testing.T) {
	svc := NewEvaluationService(config.DefaultPolicy())
	b := bundle()
	b.Tests[0].PotencyCheck = nil

	report, err := svc.Register(context.Background(), "RS1", RegisterRequest{Bundle: b})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationError, apperrors.GetCode(err))
	assert.False(t, report.Valid)
	assert.Empty(t, svc.Sessions(), "nothing is stored from a rejected bundle")

	report, err = svc.Register(context.Background(), "RS2", RegisterRequest{Bundle: bundle()})
	require.Error(t, err)
	assert.Equal(t, "hypotheses[0].session_id", report.Errors[0].Field)
}

func TestRegisterRejectsNonDiscriminativePredictions(t *testing.T) {
	svc := NewEvaluationService(config.DefaultPolicy())
	b := bundle()
	b.Predictions = append(b.Predictions, hypothesis.Prediction{
		ID:        "P-RS1-002",
		Condition: "At high dose",
		Predictions: []hypothesis.HypothesisPrediction{
			{HypothesisID: "H-RS1-001", Outcome: "Effect present"},
			{HypothesisID: "H-RS1-002", Outcome: "effect present "},
		},
	})

	report, err := svc.Register(context.Background(), "RS1", RegisterRequest{Bundle: b})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationError, apperrors.GetCode(err))
	require.NotEmpty(t, report.Errors)
	assert.Equal(t, "predictions[1]", report.Errors[len(report.Errors)-1].Field)
	assert.Empty(t, svc.Sessions(), "a bundle with one bad prediction stores none of them")
}

func TestExecuteTestAppliesSuggestions(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	result, err := svc.ExecuteTest(ctx, "RS1", ExecuteRequest{Execution: execution(), Apply: true})
	require.NoError(t, err)
	require.NotNil(t, result.Applied)
	assert.Len(t, result.Applied.Applied, 2)

	h1, err := svc.Hypothesis("RS1", "H-RS1-001")
	require.NoError(t, err)
	assert.Equal(t, hypothesis.StateRefuted, h1.State)
	h2, err := svc.Hypothesis("RS1", "H-RS1-002")
	require.NoError(t, err)
	assert.Equal(t, hypothesis.StateConfirmed, h2.State)

	cited, err := svc.TransitionsForResult("RS1", "T-RS1-001:run1")
	require.NoError(t, err)
	assert.Len(t, cited, 2)

	predictions, err := svc.Predictions("RS1")
	require.NoError(t, err)
	assert.Equal(t, hypothesis.PredictionMatched, predictions[0].Status)

	score, err := svc.ScoreSession("RS1")
	require.NoError(t, err)
	kill, ok := score.Dimension(scorecard.DimHypothesisKillRate)
	require.True(t, ok)
	assert.Greater(t, kill.Score, 0)
}

func TestExecuteTestWithoutApplyLeavesState(t *testing.T) {
	svc := newService(t)
	result, err := svc.ExecuteTest(context.Background(), "RS1", ExecuteRequest{Execution: execution()})
	require.NoError(t, err)
	assert.Nil(t, result.Applied)
	assert.Len(t, result.Suggestions, 2)

	h1, err := svc.Hypothesis("RS1", "H-RS1-001")
	require.NoError(t, err)
	assert.Equal(t, hypothesis.StateActive, h1.State)
}

func TestExecuteTestErrors(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.ExecuteTest(ctx, "RS9", ExecuteRequest{Execution: execution()})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))

	in := execution()
	in.TestID = "T-RS1-002"
	_, err = svc.ExecuteTest(ctx, "RS1", ExecuteRequest{Execution: in})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))

	in = execution()
	in.Result = ""
	_, err = svc.ExecuteTest(ctx, "RS1", ExecuteRequest{Execution: in})
	var execErr *binding.ExecutionError
	assert.True(t, errors.As(err, &execErr))
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}

func TestExecuteTestRejectsUnknownMinConfidence(t *testing.T) {
	svc := newService(t)
	for _, level := range []hypothesis.Confidence{"HIGH", "hgih"} {
		_, err := svc.ExecuteTest(context.Background(), "RS1", ExecuteRequest{
			Execution: execution(),
			Apply:     true,
			Options:   &binding.ApplyOptions{MinConfidence: level},
		})
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
	}

	h1, err := svc.Hypothesis("RS1", "H-RS1-001")
	require.NoError(t, err)
	assert.Equal(t, hypothesis.StateActive, h1.State)
}

func TestManualTransition(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	out, err := svc.Transition(ctx, "RS1", "H-RS1-001", TransitionRequest{Trigger: hypothesis.TriggerDefer, Reason: "waiting on reagents"})
	require.NoError(t, err)
	assert.Equal(t, hypothesis.StateDeferred, out.Hypothesis.State)
	assert.Equal(t, epoch.Add(time.Hour), out.Transition.Timestamp)

	_, err = svc.Transition(ctx, "RS1", "H-RS1-001", TransitionRequest{Trigger: hypothesis.TriggerConfirm, TestResultID: "T-RS1-001"})
	var te *lifecycle.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, lifecycle.CodeInvalidTransition, te.Code)

	_, err = svc.Transition(ctx, "RS1", "H-RS1-002", TransitionRequest{Trigger: hypothesis.TriggerSupersede, ChildHypothesisID: "H-RS1-007"})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}

func TestHistoryPersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	db, err := postgres.Open(ctx, "sqlite", ":memory:", 0, nil)
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewHistoryRepository(db)

	svc := newService(t, WithHistoryRepository(repo))
	_, err = svc.ExecuteTest(ctx, "RS1", ExecuteRequest{Execution: execution(), Apply: true})
	require.NoError(t, err)

	stored, err := repo.LoadHistory(ctx, "RS1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	// a fresh service with the same records rebuilds state from the repository
	fresh := newService(t, WithHistoryRepository(repo))
	require.NoError(t, fresh.Restore(ctx, "RS1"))
	h1, err := fresh.Hypothesis("RS1", "H-RS1-001")
	require.NoError(t, err)
	assert.Equal(t, hypothesis.StateRefuted, h1.State)
}

func TestImportHistoryReplacesStoredRows(t *testing.T) {
	ctx := context.Background()
	db, err := postgres.Open(ctx, "sqlite", ":memory:", 0, nil)
	require.NoError(t, err)
	defer db.Close()
	repo := postgres.NewHistoryRepository(db)

	svc := newService(t, WithHistoryRepository(repo))
	_, err = svc.Transition(ctx, "RS1", "H-RS1-001", TransitionRequest{Trigger: hypothesis.TriggerDefer, Reason: "waiting on reagents"})
	require.NoError(t, err)

	imported := lifecycle.History{"H-RS1-001": {{
		ID:           core.NewID(),
		HypothesisID: "H-RS1-001",
		FromState:    hypothesis.StateActive,
		ToState:      hypothesis.StateRefuted,
		Trigger:      hypothesis.TriggerRefute,
		TestResultID: "T-RS1-001:run1",
		Timestamp:    epoch.Add(2 * time.Hour),
	}}}
	require.NoError(t, svc.ImportHistory(ctx, "RS1", imported))

	stored, err := repo.LoadHistory(ctx, "RS1")
	require.NoError(t, err)
	require.Len(t, stored["H-RS1-001"], 1)
	assert.Equal(t, imported["H-RS1-001"][0].ID, stored["H-RS1-001"][0].ID)

	fresh := newService(t, WithHistoryRepository(repo))
	require.NoError(t, fresh.Restore(ctx, "RS1"))
	h1, err := fresh.Hypothesis("RS1", "H-RS1-001")
	require.NoError(t, err)
	assert.Equal(t, hypothesis.StateRefuted, h1.State)
}

func TestImportHistoryRejectsCorruptEntries(t *testing.T) {
	svc := newService(t)
	bad := lifecycle.History{"H-RS1-001": {{
		ID:           core.NewID(),
		HypothesisID: "H-RS1-001",
		FromState:    hypothesis.StateActive,
		ToState:      hypothesis.StateConfirmed,
		Trigger:      hypothesis.TriggerRefute,
		TestResultID: "T-RS1-001",
		Timestamp:    epoch,
	}}}

	err := svc.ImportHistory(context.Background(), "RS1", bad)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidHistory, apperrors.GetCode(err))

	history, err := svc.History("RS1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestScoreContributions(t *testing.T) {
	svc := NewEvaluationService(config.DefaultPolicy())
	scores, summary, err := svc.ScoreContributions([]scorecard.Contribution{
		{Role: scorecard.RoleHypothesisGenerator, Scores: map[string]int{
			scorecard.StructuralCorrectness: 3, scorecard.CitationCompliance: 3, scorecard.RationaleQuality: 3,
			scorecard.MechanismSpecificity: 3, scorecard.Falsifiability: 3, scorecard.CompetingAlternatives: 3,
		}},
		{Role: "narrator"},
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.True(t, scores[0].Valid)
	assert.False(t, scores[1].Valid)
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, 1, summary.Valid)
}

func TestSealAndVerifyRecord(t *testing.T) {
	ctx := context.Background()
	store, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)
	svc := NewEvaluationService(config.DefaultPolicy(), WithRecordRepository(store))

	r := session.NewRecord("RS1", epoch)
	r.Inputs.Kickoff = "Why does knockdown remove the effect only in vivo?"
	r.Trace.Rounds = []session.Round{{Number: 1, Messages: []session.Message{{Agent: "generator", Content: "H1: gene X"}}}}

	sealed, err := svc.SealRecord(ctx, r, []byte("artifact"))
	require.NoError(t, err)

	v, err := svc.VerifyRecord(ctx, "RS1", sealed.ID, []byte("artifact"))
	require.NoError(t, err)
	assert.True(t, v.Valid)

	v, err = svc.VerifyRecord(ctx, "RS1", sealed.ID, []byte("tampered"))
	require.NoError(t, err)
	assert.False(t, v.Valid)

	_, err = svc.VerifyRecord(ctx, "RS1", "REC-RS1-1", nil)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}
