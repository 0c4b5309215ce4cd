// Package polarity decides whether a piece of outcome text asserts that an
// effect is present (positive), absent (negative), or neither.
package polarity

import (
	"regexp"
	"strings"
)

// Polarity is the direction an outcome text asserts
type Polarity string

const (
	Positive  Polarity = "positive"
	Negative  Polarity = "negative"
	Ambiguous Polarity = "ambiguous"
)

// Opposes reports whether p and q are both decided and differ
func (p Polarity) Opposes(q Polarity) bool {
	return p != Ambiguous && q != Ambiguous && p != q
}

// Classifier maps outcome text to a polarity. Implementations must be pure.
type Classifier interface {
	Classify(text string) Polarity
}

// ClassifierFunc adapts a function to the Classifier interface
type ClassifierFunc func(text string) Polarity

// Classify calls f(text)
func (f ClassifierFunc) Classify(text string) Polarity {
	return f(text)
}

// Default negative phrases. Negative matches win over positive ones, so
// "not present" is negative even though it contains "present".
var defaultNegative = []string{
	"not detected", "not present", "not observed", "not found", "not seen",
	"undetected", "absent", "absence", "negative", "false", "no", "none",
	"without", "dead", "inactive", "lack", "lacks", "lacking", "fails to", "failed to",
}

var defaultPositive = []string{
	"present", "presence", "detected", "observed", "positive", "true", "yes",
	"alive", "active", "confirmed", "found", "seen",
}

// KeywordClassifier is the default word-boundary keyword heuristic.
// Nested negation ("not absent") is not resolved and classifies as negative.
type KeywordClassifier struct {
	negative []*regexp.Regexp
	positive []*regexp.Regexp
}

// NewKeywordClassifier builds the default classifier
func NewKeywordClassifier() *KeywordClassifier {
	return NewKeywordClassifierWith(defaultNegative, defaultPositive)
}

// NewKeywordClassifierWith builds a classifier over custom phrase lists
func NewKeywordClassifierWith(negative, positive []string) *KeywordClassifier {
	return &KeywordClassifier{
		negative: compile(negative),
		positive: compile(positive),
	}
}

// Classify returns Negative if any negative phrase occurs, otherwise Positive
// if any positive phrase occurs, otherwise Ambiguous.
func (c *KeywordClassifier) Classify(text string) Polarity {
	normalized := strings.ToLower(text)
	for _, re := range c.negative {
		if re.MatchString(normalized) {
			return Negative
		}
	}
	for _, re := range c.positive {
		if re.MatchString(normalized) {
			return Positive
		}
	}
	return Ambiguous
}

func compile(phrases []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(phrases))
	for _, phrase := range phrases {
		words := strings.Fields(strings.ToLower(phrase))
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		out = append(out, regexp.MustCompile(`\b`+strings.Join(words, `\s+`)+`\b`))
	}
	return out
}

// Normalize lowercases text and collapses runs of whitespace
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
