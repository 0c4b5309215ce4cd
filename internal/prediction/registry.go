// Package prediction estimates and validates how well a prediction's
// per-hypothesis outcomes discriminate between competing hypotheses.
package prediction

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
	"hypolab/internal/polarity"
)

// binaryAntonyms are the opposite pairs that make two outcomes trivially distinguishable
var binaryAntonyms = [][2]string{
	{"present", "absent"},
	{"alive", "dead"},
	{"positive", "negative"},
	{"yes", "no"},
	{"increase", "decrease"},
	{"higher", "lower"},
	{"active", "inactive"},
}

var (
	antonymPatterns = compileAntonyms()
	quantitative    = regexp.MustCompile(`\b(increase[sd]?|decrease[sd]?|higher|lower)\b|[<>%]`)
	hedgeWords      = regexp.MustCompile(`\b(might|could|possibly|maybe|some effect|changes)\b`)
)

func compileAntonyms() [][2]*regexp.Regexp {
	out := make([][2]*regexp.Regexp, len(binaryAntonyms))
	for i, pair := range binaryAntonyms {
		out[i] = [2]*regexp.Regexp{
			regexp.MustCompile(`\b` + pair[0] + `\b`),
			regexp.MustCompile(`\b` + pair[1] + `\b`),
		}
	}
	return out
}

// Discrimination reports whether a prediction's outcomes can tell hypotheses apart
type Discrimination struct {
	Discriminative bool     `json:"discriminative"`
	Score          int      `json:"score"`
	Issues         []string `json:"issues,omitempty"`
}

// ValidateDiscriminativePower fails when fewer than two entries exist or two
// outcomes are identical after normalization. Hedge words are reported as
// issues without failing the prediction.
func ValidateDiscriminativePower(p hypothesis.Prediction) Discrimination {
	result := Discrimination{Discriminative: true}

	if len(p.Predictions) < 2 {
		result.Discriminative = false
		result.Issues = append(result.Issues,
			fmt.Sprintf("prediction needs at least 2 hypothesis outcomes, has %d", len(p.Predictions)))
		return result
	}

	seen := make(map[string]core.HypothesisID, len(p.Predictions))
	for _, entry := range p.Predictions {
		key := polarity.Normalize(entry.Outcome)
		if other, dup := seen[key]; dup {
			result.Discriminative = false
			result.Issues = append(result.Issues,
				fmt.Sprintf("%s and %s predict the same outcome %q", other, entry.HypothesisID, key))
			continue
		}
		seen[key] = entry.HypothesisID
	}

	for _, entry := range p.Predictions {
		if m := hedgeWords.FindString(strings.ToLower(entry.Outcome)); m != "" {
			result.Issues = append(result.Issues,
				fmt.Sprintf("%s uses vague language (%q)", entry.HypothesisID, m))
		}
	}

	if result.Discriminative {
		result.Score = EstimateDiscriminativePower(p.Predictions)
	}
	return result
}

// EstimateDiscriminativePower scores outcomes 0-3:
// 3 when any pair holds binary antonyms, 2 when any outcome is quantitative,
// 1 for qualitative differences, 0 with fewer than two outcomes.
func EstimateDiscriminativePower(entries []hypothesis.HypothesisPrediction) int {
	if len(entries) < 2 {
		return 0
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = strings.ToLower(e.Outcome)
	}

	for i := range texts {
		for j := range texts {
			if i == j {
				continue
			}
			for _, pair := range antonymPatterns {
				if pair[0].MatchString(texts[i]) && pair[1].MatchString(texts[j]) {
					return 3
				}
			}
		}
	}

	for _, text := range texts {
		if quantitative.MatchString(text) {
			return 2
		}
	}
	return 1
}

// BinaryClaim is one side of a binary prediction
type BinaryClaim struct {
	HypothesisID  core.HypothesisID
	Outcome       string
	ExpectedValue string
}

// CreateBinaryPrediction builds a two-hypothesis prediction whose outcomes must
// classify to opposite polarities. It refuses to build a non-discriminative one.
func CreateBinaryPrediction(id core.PredictionID, condition string, a, b BinaryClaim, classifier polarity.Classifier) (hypothesis.Prediction, error) {
	if classifier == nil {
		classifier = polarity.NewKeywordClassifier()
	}
	if a.HypothesisID == b.HypothesisID {
		return hypothesis.Prediction{}, fmt.Errorf("%w: both sides name %s", core.ErrNonDiscriminative, a.HypothesisID)
	}

	pa, pb := classifier.Classify(a.Outcome), classifier.Classify(b.Outcome)
	if !pa.Opposes(pb) {
		return hypothesis.Prediction{}, fmt.Errorf("%w: %s predicts %s and %s predicts %s",
			core.ErrNonDiscriminative, a.HypothesisID, pa, b.HypothesisID, pb)
	}

	return hypothesis.Prediction{
		ID:        id,
		Condition: condition,
		Predictions: []hypothesis.HypothesisPrediction{
			{HypothesisID: a.HypothesisID, Outcome: a.Outcome, Type: hypothesis.PredictionBinary, ExpectedValue: a.ExpectedValue},
			{HypothesisID: b.HypothesisID, Outcome: b.Outcome, Type: hypothesis.PredictionBinary, ExpectedValue: b.ExpectedValue},
		},
		DiscriminativePower: 3,
		Status:              hypothesis.PredictionUntested,
	}, nil
}

// Registry is an in-memory index of a session's predictions
type Registry struct {
	mu          sync.RWMutex
	predictions map[core.PredictionID]hypothesis.Prediction
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{predictions: make(map[core.PredictionID]hypothesis.Prediction)}
}

// Register stores p after checking it is discriminative. The stored power is
// the estimate when the caller left it at zero.
func (r *Registry) Register(p hypothesis.Prediction) (Discrimination, error) {
	if !p.ID.Valid() {
		return Discrimination{}, fmt.Errorf("%w: prediction ID %q", core.ErrMalformedID, p.ID)
	}
	d := ValidateDiscriminativePower(p)
	if !d.Discriminative {
		return d, fmt.Errorf("%w: %s", core.ErrNonDiscriminative, strings.Join(d.Issues, "; "))
	}

	stored := p.Clone()
	if stored.DiscriminativePower == 0 {
		stored.DiscriminativePower = d.Score
	}
	if stored.Status == "" {
		stored.Status = hypothesis.PredictionUntested
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictions[p.ID] = stored
	return d, nil
}

// Get returns a registered prediction
func (r *Registry) Get(id core.PredictionID) (hypothesis.Prediction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predictions[id]
	if !ok {
		return hypothesis.Prediction{}, false
	}
	return p.Clone(), true
}

// ForHypothesis lists predictions in which the hypothesis participates, by id
func (r *Registry) ForHypothesis(id core.HypothesisID) []hypothesis.Prediction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []hypothesis.Prediction
	for _, p := range r.predictions {
		if _, ok := p.For(id); ok {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All lists every registered prediction, by id
func (r *Registry) All() []hypothesis.Prediction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]hypothesis.Prediction, 0, len(r.predictions))
	for _, p := range r.predictions {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStatus records the tested status of a prediction group
func (r *Registry) SetStatus(id core.PredictionID, status hypothesis.PredictionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown prediction status %q", status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.predictions[id]
	if !ok {
		return core.NewNotFoundError("prediction", string(id))
	}
	p.Status = status
	r.predictions[id] = p
	return nil
}
