// Package binding turns an observed test execution into lifecycle transition
// suggestions by comparing the polarity of the result with the polarity each
// hypothesis predicted, then applies approved suggestions.
package binding

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
	"hypolab/internal/lifecycle"
	"hypolab/internal/polarity"
)

// strongSupport is the number of backing predictions that raises confidence one step
const strongSupport = 3

// Engine is stateless; it only holds the polarity strategy and a logger
type Engine struct {
	classifier polarity.Classifier
	logger     *zap.Logger
}

// NewEngine creates an engine. Nil arguments fall back to the keyword
// classifier and a no-op logger.
func NewEngine(classifier polarity.Classifier, logger *zap.Logger) *Engine {
	if classifier == nil {
		classifier = polarity.NewKeywordClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{classifier: classifier, logger: logger}
}

// RecordExecution validates the input against the test and its predictions
// and evaluates every participating hypothesis. All problems are returned
// together in an *ExecutionError.
func (e *Engine) RecordExecution(in ExecutionInput, test hypothesis.TestRecord, predictions []hypothesis.Prediction) (Record, error) {
	byID := make(map[core.PredictionID]hypothesis.Prediction, len(predictions))
	for _, p := range predictions {
		byID[p.ID] = p
	}

	var errs []string
	if !in.TestID.Valid() {
		errs = append(errs, fmt.Sprintf("test_id %q is malformed", in.TestID))
	}
	if in.TestID != test.ID {
		errs = append(errs, fmt.Sprintf("test_id %s does not match test record %s", in.TestID, test.ID))
	}
	if strings.TrimSpace(in.Result) == "" {
		errs = append(errs, "result is required")
	}
	if !in.Confidence.Valid() {
		errs = append(errs, fmt.Sprintf("confidence %q must be one of high, medium, low, speculative", in.Confidence))
	}
	if len(in.MatchedPredictions)+len(in.ViolatedPredictions) == 0 {
		errs = append(errs, "at least one matched or violated prediction is required")
	}
	errs = append(errs, checkPredictionList("matched_predictions", in.MatchedPredictions, byID)...)
	errs = append(errs, checkPredictionList("violated_predictions", in.ViolatedPredictions, byID)...)

	violated := make(map[core.PredictionID]bool, len(in.ViolatedPredictions))
	for _, id := range in.ViolatedPredictions {
		violated[id] = true
	}
	for _, id := range in.MatchedPredictions {
		if violated[id] {
			errs = append(errs, fmt.Sprintf("prediction %s is listed as both matched and violated", id))
		}
	}

	if len(errs) > 0 {
		e.logger.Debug("execution rejected",
			zap.String("test_id", string(in.TestID)),
			zap.Strings("errors", errs))
		return Record{}, &ExecutionError{TestID: in.TestID, Errors: errs}
	}

	rec := Record{
		Input:          in,
		ResultPolarity: e.classifier.Classify(in.Result),
	}
	if !in.PotencyCheckPassed {
		rec.Warnings = append(rec.Warnings,
			"potency check failed: a negative result may reflect an insensitive assay; confidence lowered")
	}
	if rec.ResultPolarity == polarity.Ambiguous {
		rec.Warnings = append(rec.Warnings, "result polarity is ambiguous; no hypothesis will be actioned by polarity")
	}

	for _, id := range in.MatchedPredictions {
		p := byID[id]
		rec.Warnings = append(rec.Warnings, outsideTest(p, test)...)
		for _, entry := range p.Predictions {
			predicted := e.classifier.Classify(entry.Outcome)
			rec.Evaluations = append(rec.Evaluations, Evaluation{
				PredictionID:      id,
				HypothesisID:      entry.HypothesisID,
				PredictedOutcome:  entry.Outcome,
				PredictedPolarity: predicted,
				Verdict:           compare(rec.ResultPolarity, predicted),
			})
		}
	}
	for _, id := range in.ViolatedPredictions {
		p := byID[id]
		rec.Warnings = append(rec.Warnings, outsideTest(p, test)...)
		for _, entry := range p.Predictions {
			rec.Evaluations = append(rec.Evaluations, Evaluation{
				PredictionID:      id,
				HypothesisID:      entry.HypothesisID,
				PredictedOutcome:  entry.Outcome,
				PredictedPolarity: e.classifier.Classify(entry.Outcome),
				Verdict:           VerdictViolated,
				Forced:            true,
			})
		}
	}

	rec.Tallies = tally(rec.Evaluations)
	return rec, nil
}

// Suggest recommends one action per evaluated hypothesis, gated by the
// hypothesis' current state. Suggestions are ordered by hypothesis id.
func (e *Engine) Suggest(rec Record, hypotheses map[core.HypothesisID]hypothesis.Hypothesis) []Suggestion {
	suggestions := make([]Suggestion, 0, len(rec.Tallies))
	for _, t := range rec.Tallies {
		s := Suggestion{
			HypothesisID:          t.HypothesisID,
			TestResultID:          rec.Input.TestResultID(),
			SupportingPredictions: t.Supporting,
			ViolatingPredictions:  t.Violating,
			AmbiguousPredictions:  t.Ambiguous,
		}

		support := 0
		switch {
		case len(t.Violating) > 0:
			s.Action = ActionKill
			support = len(t.Violating)
			s.Rationale = fmt.Sprintf("result contradicts %s", joinIDs(t.Violating))
		case len(t.Supporting) > 0:
			s.Action = ActionValidate
			support = len(t.Supporting)
			s.Rationale = fmt.Sprintf("result agrees with %s", joinIDs(t.Supporting))
		default:
			s.Action = ActionNone
			s.Rationale = "polarity of the result or the prediction is ambiguous"
		}
		s.Trigger, _ = s.Action.Trigger()
		s.Confidence = deriveConfidence(rec.Input, support)

		h, ok := hypotheses[t.HypothesisID]
		if ok {
			s.CurrentState = h.State
		}
		s.Feasible, s.BlockedReason = feasibility(s.Action, t.HypothesisID, h, ok)

		e.logger.Debug("suggestion",
			zap.String("hypothesis_id", string(s.HypothesisID)),
			zap.String("action", string(s.Action)),
			zap.String("confidence", string(s.Confidence)),
			zap.Bool("feasible", s.Feasible))
		suggestions = append(suggestions, s)
	}
	return suggestions
}

// Apply carries out feasible suggestions through the lifecycle. The input map
// is not modified; the result holds updated copies. Lifecycle refusals are
// reported per hypothesis.
func (e *Engine) Apply(suggestions []Suggestion, hypotheses map[core.HypothesisID]hypothesis.Hypothesis, opts ApplyOptions) ApplyResult {
	result := ApplyResult{Hypotheses: make(map[core.HypothesisID]hypothesis.Hypothesis, len(hypotheses))}
	for id, h := range hypotheses {
		result.Hypotheses[id] = h.Clone()
	}

	for _, s := range suggestions {
		skip := func(reason string) {
			result.Skipped = append(result.Skipped, Skipped{HypothesisID: s.HypothesisID, Action: s.Action, Reason: reason})
		}

		trigger, actionable := s.Action.Trigger()
		switch {
		case !actionable:
			skip("no action suggested")
			continue
		case !s.Feasible:
			skip(s.BlockedReason)
			continue
		case opts.KillsOnly && s.Action != ActionKill:
			skip("kills-only mode")
			continue
		case opts.MinConfidence != "" && !opts.MinConfidence.Valid():
			skip(fmt.Sprintf("unknown minimum confidence %q", opts.MinConfidence))
			continue
		case opts.MinConfidence != "" && !s.Confidence.AtLeast(opts.MinConfidence):
			skip(fmt.Sprintf("confidence %s is below minimum %s", s.Confidence, opts.MinConfidence))
			continue
		}

		h, ok := result.Hypotheses[s.HypothesisID]
		if !ok {
			result.Failed = append(result.Failed, Failure{
				HypothesisID: s.HypothesisID,
				Action:       s.Action,
				Message:      fmt.Sprintf("hypothesis %s not found", s.HypothesisID),
			})
			continue
		}

		out, err := lifecycle.Transition(h, trigger, lifecycle.Options{
			TestResultID: s.TestResultID,
			Reason:       s.Rationale,
			Clock:        opts.Clock,
		})
		if err != nil {
			f := Failure{HypothesisID: s.HypothesisID, Action: s.Action, Message: err.Error()}
			if te, ok := err.(*lifecycle.TransitionError); ok {
				f.Transition = te
			}
			result.Failed = append(result.Failed, f)
			e.logger.Warn("suggestion refused by lifecycle",
				zap.String("hypothesis_id", string(s.HypothesisID)),
				zap.Error(err))
			continue
		}

		result.Hypotheses[s.HypothesisID] = out.Hypothesis
		if opts.Store != nil {
			opts.Store.Add(out.Transition)
		}
		result.Applied = append(result.Applied, Applied{
			HypothesisID: s.HypothesisID,
			Action:       s.Action,
			Hypothesis:   out.Hypothesis,
			Transition:   out.Transition,
		})
	}
	return result
}

// ProcessTestExecution records the execution, derives suggestions and, when
// requested, applies them. A rejected execution stops the pipeline.
func (e *Engine) ProcessTestExecution(
	in ExecutionInput,
	test hypothesis.TestRecord,
	predictions []hypothesis.Prediction,
	hypotheses map[core.HypothesisID]hypothesis.Hypothesis,
	opts ProcessOptions,
) (ProcessResult, error) {
	rec, err := e.RecordExecution(in, test, predictions)
	if err != nil {
		return ProcessResult{}, err
	}

	result := ProcessResult{
		Record:      rec,
		Suggestions: e.Suggest(rec, hypotheses),
	}
	if opts.Apply {
		applied := e.Apply(result.Suggestions, hypotheses, opts.ApplyOptions)
		result.Applied = &applied
		e.logger.Info("test execution applied",
			zap.String("test_id", string(in.TestID)),
			zap.Int("applied", len(applied.Applied)),
			zap.Int("failed", len(applied.Failed)),
			zap.Int("skipped", len(applied.Skipped)))
	}
	return result, nil
}

func checkPredictionList(field string, ids []core.PredictionID, known map[core.PredictionID]hypothesis.Prediction) []string {
	var errs []string
	seen := make(map[core.PredictionID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			errs = append(errs, fmt.Sprintf("prediction %s appears twice in %s", id, field))
			continue
		}
		seen[id] = true
		if _, ok := known[id]; !ok {
			errs = append(errs, fmt.Sprintf("prediction %s in %s does not exist", id, field))
		}
	}
	return errs
}

func outsideTest(p hypothesis.Prediction, test hypothesis.TestRecord) []string {
	var warnings []string
	for _, entry := range p.Predictions {
		if !test.Discriminates(entry.HypothesisID) {
			warnings = append(warnings, fmt.Sprintf("prediction %s involves %s, which test %s does not discriminate",
				p.ID, entry.HypothesisID, test.ID))
		}
	}
	return warnings
}

func compare(result, predicted polarity.Polarity) Verdict {
	if result == polarity.Ambiguous || predicted == polarity.Ambiguous {
		return VerdictAmbiguous
	}
	if result == predicted {
		return VerdictMatched
	}
	return VerdictViolated
}

func tally(evals []Evaluation) []Tally {
	byHypothesis := make(map[core.HypothesisID]*Tally)
	for _, ev := range evals {
		t, ok := byHypothesis[ev.HypothesisID]
		if !ok {
			t = &Tally{HypothesisID: ev.HypothesisID}
			byHypothesis[ev.HypothesisID] = t
		}
		switch ev.Verdict {
		case VerdictMatched:
			t.Supporting = appendUnique(t.Supporting, ev.PredictionID)
		case VerdictViolated:
			t.Violating = appendUnique(t.Violating, ev.PredictionID)
		default:
			t.Ambiguous = appendUnique(t.Ambiguous, ev.PredictionID)
		}
	}

	out := make([]Tally, 0, len(byHypothesis))
	for _, t := range byHypothesis {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HypothesisID < out[j].HypothesisID })
	return out
}

func appendUnique(ids []core.PredictionID, id core.PredictionID) []core.PredictionID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// deriveConfidence starts from the caller's confidence, drops two steps when
// the potency check failed and gains one with strong support
func deriveConfidence(in ExecutionInput, support int) hypothesis.Confidence {
	c := in.Confidence
	if !in.PotencyCheckPassed {
		c = c.Step(-2)
	}
	if support >= strongSupport {
		c = c.Step(1)
	}
	return c
}

func feasibility(action Action, id core.HypothesisID, h hypothesis.Hypothesis, found bool) (bool, string) {
	if action == ActionNone {
		return false, "no decisive evidence"
	}
	if !found {
		return false, fmt.Sprintf("hypothesis %s not found", id)
	}

	switch action {
	case ActionKill:
		switch h.State {
		case hypothesis.StateActive, hypothesis.StateConfirmed:
			return true, ""
		case hypothesis.StateProposed:
			return false, "hypothesis is still proposed; activate it before it can be killed"
		case hypothesis.StateDeferred:
			return false, "hypothesis is deferred; reactivate it before it can be killed"
		case hypothesis.StateRefuted:
			return false, "hypothesis is already refuted"
		case hypothesis.StateSuperseded:
			return false, "hypothesis was superseded and can no longer change"
		}
	case ActionValidate:
		switch h.State {
		case hypothesis.StateActive:
			return true, ""
		case hypothesis.StateConfirmed:
			return false, "hypothesis is already confirmed"
		default:
			return false, fmt.Sprintf("only active hypotheses can be validated; hypothesis is %s", h.State)
		}
	}
	return false, fmt.Sprintf("hypothesis is in unknown state %q", h.State)
}

func joinIDs(ids []core.PredictionID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
