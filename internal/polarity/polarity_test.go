package polarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier()

	tests := []struct {
		text     string
		expected Polarity
	}{
		{"Effect present", Positive},
		{"Effect absent", Negative},
		{"Effect absent — negative result observed", Negative},
		{"Signal detected in all replicates", Positive},
		{"Signal not detected", Negative},
		{"Protein NOT PRESENT in lysate", Negative},
		{"Cells remain alive", Positive},
		{"Cells are dead", Negative},
		{"Yes", Positive},
		{"No change in expression", Negative},
		{"Expression increases twofold", Ambiguous},
		{"", Ambiguous},
		// word boundaries: "piano" must not match "no", "inactive" must not match "active"
		{"The piano was tuned", Ambiguous},
		{"Enzyme inactive", Negative},
		{"Enzyme active", Positive},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(tt.text))
		})
	}
}

// Adversarial cases pin the heuristic's known blind spots rather than fix them.
func TestKeywordClassifierNestedNegation(t *testing.T) {
	c := NewKeywordClassifier()

	// double negation reads as present to a human but stays negative here
	assert.Equal(t, Negative, c.Classify("Effect not absent"))
	// hedged statements still trip a keyword
	assert.Equal(t, Positive, c.Classify("Effect possibly present, hard to say"))
	// sarcasm is invisible to keywords
	assert.Equal(t, Positive, c.Classify("Oh sure, the effect was 'observed'"))
}

func TestCustomClassifier(t *testing.T) {
	c := NewKeywordClassifierWith([]string{"down"}, []string{"up"})
	assert.Equal(t, Positive, c.Classify("levels go up"))
	assert.Equal(t, Negative, c.Classify("levels go up then down"))
	assert.Equal(t, Ambiguous, c.Classify("levels absent"))

	var fn Classifier = ClassifierFunc(func(string) Polarity { return Positive })
	assert.Equal(t, Positive, fn.Classify("anything"))
}

func TestOpposes(t *testing.T) {
	assert.True(t, Positive.Opposes(Negative))
	assert.False(t, Positive.Opposes(Positive))
	assert.False(t, Ambiguous.Opposes(Negative))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "cells change", Normalize("  Cells \t CHANGE\n"))
}
