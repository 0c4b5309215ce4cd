package scorecard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
	"hypolab/internal/testrecord"
)

func TestRubricShape(t *testing.T) {
	all := Rubric()
	assert.Len(t, all, 15, "three universal plus four per role")

	perRole := map[Role]int{}
	optional := 0
	for _, c := range all {
		perRole[c.Role]++
		if c.Optional {
			optional++
			assert.Equal(t, 2, c.MaxScore())
		} else {
			assert.Equal(t, 3, c.MaxScore())
		}
	}
	assert.Equal(t, 3, perRole[RoleUniversal])
	assert.Equal(t, 4, perRole[RoleHypothesisGenerator])
	assert.Equal(t, 4, perRole[RoleTestDesigner])
	assert.Equal(t, 4, perRole[RoleAdversarialCritic])
	assert.Equal(t, 3, optional)

	c, ok := Lookup(DiscriminativePower)
	require.True(t, ok)
	assert.Equal(t, 2.0, c.Weight)
	assert.Len(t, CriteriaFor(RoleTestDesigner), 7)
}

func TestScoreContributionWeightedTotal(t *testing.T) {
	c := Contribution{
		Role: RoleTestDesigner,
		Scores: map[string]int{
			StructuralCorrectness: 3,
			CitationCompliance:    3,
			RationaleQuality:      2,
			DiscriminativePower:   3,
			PotencyCheck:          3,
			EvidencePerWeek:       2,
		},
	}

	score := ScoreContribution(c)
	assert.True(t, score.Valid)
	assert.InDelta(t, 21.0, score.Total, 1e-9)
	assert.InDelta(t, 22.5, score.Max, 1e-9, "inapplicable object transposition drops out of the maximum")
	assert.Equal(t, 93.3, score.Percentage)

	c.Scores[ObjectTransposition] = 2
	score = ScoreContribution(c)
	assert.InDelta(t, 22.0, score.Total, 1e-9)
	assert.InDelta(t, 23.5, score.Max, 1e-9)
	assert.Equal(t, 93.6, score.Percentage)
}

func TestOptionalCriteriaShrinkMaximum(t *testing.T) {
	scores := map[string]int{
		StructuralCorrectness: 3,
		CitationCompliance:    3,
		RationaleQuality:      3,
		MechanismSpecificity:  3,
		Falsifiability:        3,
		CompetingAlternatives: 3,
	}
	without := ScoreContribution(Contribution{Role: RoleHypothesisGenerator, Scores: scores})
	assert.InDelta(t, 19.5, without.Max, 1e-9)
	assert.Equal(t, 100.0, without.Percentage)

	scores[ParadoxExploitation] = 0
	with := ScoreContribution(Contribution{Role: RoleHypothesisGenerator, Scores: scores})
	assert.InDelta(t, 21.5, with.Max, 1e-9, "an explicit 0 makes the optional criterion applicable")
}

func TestScoreContributionGates(t *testing.T) {
	base := func() map[string]int {
		return map[string]int{
			StructuralCorrectness: 3,
			CitationCompliance:    3,
			RationaleQuality:      3,
			PotencyCheck:          3,
		}
	}

	tests := []struct {
		name string
		c    Contribution
		gate string
	}{
		{
			name: "invalid structure",
			c: Contribution{Role: RoleHypothesisGenerator, Scores: map[string]int{
				CitationCompliance: 3,
			}},
			gate: GateInvalidStructure,
		},
		{
			name: "missing potency score",
			c: Contribution{Role: RoleTestDesigner, Scores: map[string]int{
				StructuralCorrectness: 3,
			}},
			gate: GateMissingPotencyCheck,
		},
		{
			name: "potency flagged missing",
			c:    Contribution{Role: RoleTestDesigner, Scores: base(), MissingPotencyCheck: true},
			gate: GateMissingPotencyCheck,
		},
		{
			name: "malformed anchor",
			c:    Contribution{Role: RoleAdversarialCritic, Scores: base(), Anchors: []core.Anchor{"§x"}},
			gate: GateFakeCitation,
		},
		{
			name: "anchor beyond transcript",
			c: Contribution{Role: RoleAdversarialCritic, Scores: base(),
				Anchors: []core.Anchor{"§3-5", "§12"}, TranscriptSections: 10},
			gate: GateFakeCitation,
		},
		{
			name: "kill without justification",
			c:    Contribution{Role: RoleAdversarialCritic, Scores: base(), ClaimsKill: true},
			gate: GateUnjustifiedKill,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := ScoreContribution(tt.c)
			assert.False(t, score.Valid)
			require.Len(t, score.GateFailures, 1)
			assert.Equal(t, tt.gate, score.GateFailures[0].Gate)
		})
	}

	t.Run("justified kill passes", func(t *testing.T) {
		scores := base()
		scores[KillJustification] = 2
		score := ScoreContribution(Contribution{Role: RoleAdversarialCritic, Scores: scores, ClaimsKill: true,
			Anchors: []core.Anchor{"§3-5"}, TranscriptSections: 10})
		assert.True(t, score.Valid)
		assert.Empty(t, score.GateFailures)
	})

	t.Run("gate wins over a high score", func(t *testing.T) {
		scores := map[string]int{
			StructuralCorrectness: 3, CitationCompliance: 3, RationaleQuality: 3,
			AttackSpecificity: 3, CounterexampleQuality: 3, ThirdAlternativeProposal: 3,
		}
		score := ScoreContribution(Contribution{Role: RoleAdversarialCritic, Scores: scores, ClaimsKill: true})
		assert.Equal(t, 100.0, score.Percentage)
		assert.False(t, score.Valid)
	})
}

func TestScoreContributionWarnings(t *testing.T) {
	score := ScoreContribution(Contribution{
		Role: RoleHypothesisGenerator,
		Scores: map[string]int{
			StructuralCorrectness: 5,
			PotencyCheck:          3,
		},
	})
	require.Len(t, score.Warnings, 2)
	assert.Contains(t, score.Warnings[0], "outside 0-3")
	assert.Contains(t, score.Warnings[1], "does not apply")
	assert.Equal(t, 3, score.Breakdown[0].Score)

	unknown := ScoreContribution(Contribution{Role: "observer"})
	assert.False(t, unknown.Valid)
	assert.Equal(t, GateInvalidStructure, unknown.GateFailures[0].Gate)
}

func TestPolicyFillsTranscriptLength(t *testing.T) {
	p := DefaultPolicy()
	p.TranscriptSections = 4
	c := Contribution{
		Role:    RoleHypothesisGenerator,
		Scores:  map[string]int{StructuralCorrectness: 3},
		Anchors: []core.Anchor{"§5"},
	}
	assert.False(t, p.ScoreContribution(c).Valid)

	c.TranscriptSections = 6
	assert.True(t, p.ScoreContribution(c).Valid)
}

func designedTest() hypothesis.TestRecord {
	return hypothesis.TestRecord{
		ID:                   "T-RS1-001",
		Procedure:            "Western blot for protein Y",
		DiscriminatesBetween: []core.HypothesisID{"H-RS1-001", "H-RS1-002"},
		ExpectedOutcomes: []hypothesis.ExpectedOutcome{
			{HypothesisID: "H-RS1-001", Outcome: "Band present at 40 kDa"},
			{HypothesisID: "H-RS1-002", Outcome: "Band absent"},
		},
		PotencyCheck: &hypothesis.PotencyCheck{
			PositiveControl:         "Recombinant protein Y spiked lane",
			SensitivityVerification: "Dilution series down to 1 ng",
			TimingValidation:        "Harvest at 24h and 48h",
		},
		EvidencePerWeek:     hypothesis.EvidencePerWeekScore{LikelihoodRatio: 3, Cost: 2, Speed: 2, Ambiguity: 2},
		ObjectTransposition: &hypothesis.ObjectTransposition{AlternativeSystem: "yeast", Rationale: "Orthologue lacks the domain"},
		Feasibility:         &hypothesis.Feasibility{Status: hypothesis.FeasibilityFeasible, EstimatedWeeks: 2},
	}
}

func TestDeriveTestDesignerScores(t *testing.T) {
	scores := DeriveTestDesignerScores(designedTest(), nil)
	assert.Equal(t, map[string]int{
		DiscriminativePower: 3,
		PotencyCheck:        3,
		EvidencePerWeek:     2,
		ObjectTransposition: 2,
	}, scores)

	inflated := designedTest()
	inflated.EvidencePerWeek = hypothesis.EvidencePerWeekScore{LikelihoodRatio: 3, Cost: 3, Speed: 3, Ambiguity: 3}
	inflated.ObjectTransposition = nil
	inflated.PotencyCheck = nil
	scores = DeriveTestDesignerScores(inflated, testrecord.DefaultValidator())
	assert.Equal(t, 1, scores[EvidencePerWeek], "inflated scores are capped")
	assert.Equal(t, 0, scores[PotencyCheck])
	_, ok := scores[ObjectTransposition]
	assert.False(t, ok)

	scores[StructuralCorrectness] = 3
	score := ScoreContribution(Contribution{Role: RoleTestDesigner, Scores: scores})
	assert.False(t, score.Valid)
	assert.Equal(t, GateMissingPotencyCheck, score.GateFailures[0].Gate)
}

func TestSummarizeContributions(t *testing.T) {
	summary, err := SummarizeContributions(nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)

	summary, err = SummarizeContributions([]ContributionScore{
		{Percentage: 50, Valid: true},
		{Percentage: 70},
		{Percentage: 90, Valid: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 2, summary.Valid)
	assert.Equal(t, 70.0, summary.Mean)
	assert.Equal(t, 70.0, summary.Median)
	assert.Equal(t, 16.3, summary.StdDev)
	assert.Equal(t, 50.0, summary.Min)
	assert.Equal(t, 90.0, summary.Max)
}
