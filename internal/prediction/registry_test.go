package prediction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
)

func entries(outcomes ...string) []hypothesis.HypothesisPrediction {
	out := make([]hypothesis.HypothesisPrediction, len(outcomes))
	for i, o := range outcomes {
		out[i] = hypothesis.HypothesisPrediction{HypothesisID: core.NewHypothesisID("RS1", i+1), Outcome: o}
	}
	return out
}

func prediction(outcomes ...string) hypothesis.Prediction {
	return hypothesis.Prediction{
		ID:          "P-RS1-001",
		Condition:   "Knock out gene X in strain A",
		Predictions: entries(outcomes...),
	}
}

func TestEstimateDiscriminativePower(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []string
		expected int
	}{
		{"binary antonyms", []string{"Gene X present", "Gene X absent"}, 3},
		{"antonyms in reverse order", []string{"cells dead", "cells alive"}, 3},
		{"yes no", []string{"yes", "no"}, 3},
		{"inactive is not active", []string{"enzyme active", "enzyme inactive"}, 3},
		{"quantitative", []string{"expression rises 2x", "expression is higher by 10%"}, 2},
		{"comparison operator", []string{"titre > 100", "titre unchanged"}, 2},
		{"qualitative", []string{"cells elongate", "cells round up"}, 1},
		{"single outcome", []string{"present"}, 0},
		{"none", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EstimateDiscriminativePower(entries(tt.outcomes...)))
		})
	}
}

func TestValidateDiscriminativePower(t *testing.T) {
	t.Run("identical outcomes are not discriminative", func(t *testing.T) {
		d := ValidateDiscriminativePower(prediction("cells change", "cells change"))
		assert.False(t, d.Discriminative)
		assert.Equal(t, 0, d.Score)
		assert.NotEmpty(t, d.Issues)
	})

	t.Run("identical after normalization", func(t *testing.T) {
		d := ValidateDiscriminativePower(prediction("Cells  Elongate", "cells elongate "))
		assert.False(t, d.Discriminative)
	})

	t.Run("fewer than two entries", func(t *testing.T) {
		d := ValidateDiscriminativePower(prediction("present"))
		assert.False(t, d.Discriminative)
		require.Len(t, d.Issues, 1)
		assert.Contains(t, d.Issues[0], "at least 2")
	})

	t.Run("binary pair", func(t *testing.T) {
		d := ValidateDiscriminativePower(prediction("Gene X present", "Gene X absent"))
		assert.True(t, d.Discriminative)
		assert.Equal(t, 3, d.Score)
		assert.Empty(t, d.Issues)
	})

	t.Run("vague language is flagged but not fatal", func(t *testing.T) {
		d := ValidateDiscriminativePower(prediction("growth might slow", "growth is unaffected"))
		assert.True(t, d.Discriminative)
		require.Len(t, d.Issues, 1)
		assert.Contains(t, d.Issues[0], "might")
	})

	t.Run("idempotent", func(t *testing.T) {
		p := prediction("cells maybe shrink", "cells swell")
		assert.Equal(t, ValidateDiscriminativePower(p), ValidateDiscriminativePower(p))
	})
}

func TestCreateBinaryPrediction(t *testing.T) {
	p, err := CreateBinaryPrediction("P-RS1-002", "Stain for marker M",
		BinaryClaim{HypothesisID: "H-RS1-001", Outcome: "Marker present"},
		BinaryClaim{HypothesisID: "H-RS1-002", Outcome: "Marker absent"},
		nil)
	require.NoError(t, err)
	assert.Equal(t, 3, p.DiscriminativePower)
	assert.Equal(t, hypothesis.PredictionUntested, p.Status)
	require.Len(t, p.Predictions, 2)
	assert.Equal(t, hypothesis.PredictionBinary, p.Predictions[0].Type)

	_, err = CreateBinaryPrediction("P-RS1-003", "Stain for marker M",
		BinaryClaim{HypothesisID: "H-RS1-001", Outcome: "Marker present"},
		BinaryClaim{HypothesisID: "H-RS1-002", Outcome: "Marker detected"},
		nil)
	assert.True(t, errors.Is(err, core.ErrNonDiscriminative))

	_, err = CreateBinaryPrediction("P-RS1-004", "Stain for marker M",
		BinaryClaim{HypothesisID: "H-RS1-001", Outcome: "Marker present"},
		BinaryClaim{HypothesisID: "H-RS1-002", Outcome: "Marker shifts"},
		nil)
	assert.True(t, errors.Is(err, core.ErrNonDiscriminative), "ambiguous side cannot be binary")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	d, err := r.Register(prediction("Gene X present", "Gene X absent"))
	require.NoError(t, err)
	assert.Equal(t, 3, d.Score)

	stored, ok := r.Get("P-RS1-001")
	require.True(t, ok)
	assert.Equal(t, 3, stored.DiscriminativePower)
	assert.Equal(t, hypothesis.PredictionUntested, stored.Status)

	assert.Len(t, r.ForHypothesis("H-RS1-002"), 1)
	assert.Empty(t, r.ForHypothesis("H-RS1-007"))

	require.NoError(t, r.SetStatus("P-RS1-001", hypothesis.PredictionMatched))
	stored, _ = r.Get("P-RS1-001")
	assert.Equal(t, hypothesis.PredictionMatched, stored.Status)

	err = r.SetStatus("P-RS1-404", hypothesis.PredictionMatched)
	assert.True(t, core.IsNotFoundError(err))

	bad := prediction("cells change", "cells change")
	bad.ID = "P-RS1-005"
	_, err = r.Register(bad)
	assert.True(t, errors.Is(err, core.ErrNonDiscriminative))

	malformed := prediction("present", "absent")
	malformed.ID = "pred-1"
	_, err = r.Register(malformed)
	assert.True(t, errors.Is(err, core.ErrMalformedID))

	assert.Len(t, r.All(), 1)
}
