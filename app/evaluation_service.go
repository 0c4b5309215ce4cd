package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
	"hypolab/internal/binding"
	"hypolab/internal/config"
	apperrors "hypolab/internal/errors"
	"hypolab/internal/lifecycle"
	"hypolab/internal/polarity"
	"hypolab/internal/prediction"
	"hypolab/internal/scorecard"
	"hypolab/internal/session"
	"hypolab/internal/testrecord"
	"hypolab/internal/validation"
	"hypolab/ports"
)

// Workspace is the in-memory state of one research session
type Workspace struct {
	mu          sync.Mutex
	id          string
	paradox     string
	hypotheses  map[core.HypothesisID]hypothesis.Hypothesis
	predictions *prediction.Registry
	tests       map[core.TestID]hypothesis.TestRecord
	assumptions []hypothesis.Assumption
	critiques   []hypothesis.Critique
	history     *lifecycle.HistoryStore
}

func newWorkspace(id string) *Workspace {
	return &Workspace{
		id:          id,
		hypotheses:  make(map[core.HypothesisID]hypothesis.Hypothesis),
		predictions: prediction.NewRegistry(),
		tests:       make(map[core.TestID]hypothesis.TestRecord),
		history:     lifecycle.NewHistoryStore(),
	}
}

// EvaluationService keeps session workspaces and runs the engine over them
type EvaluationService struct {
	engine    *binding.Engine
	validator *testrecord.Validator
	policy    config.Policy
	history   ports.HistoryRepository
	records   ports.RecordRepository
	logger    *zap.Logger
	clock     core.Clock

	mu       sync.RWMutex
	sessions map[string]*Workspace
}

// Option configures an EvaluationService
type Option func(*serviceOptions)

type serviceOptions struct {
	classifier polarity.Classifier
	history    ports.HistoryRepository
	records    ports.RecordRepository
	logger     *zap.Logger
	clock      core.Clock
}

// WithClassifier replaces the keyword polarity classifier
func WithClassifier(c polarity.Classifier) Option {
	return func(o *serviceOptions) { o.classifier = c }
}

// WithHistoryRepository persists transition history after every change
func WithHistoryRepository(r ports.HistoryRepository) Option {
	return func(o *serviceOptions) { o.history = r }
}

// WithRecordRepository enables sealed session records
func WithRecordRepository(r ports.RecordRepository) Option {
	return func(o *serviceOptions) { o.records = r }
}

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) Option {
	return func(o *serviceOptions) { o.logger = l }
}

// WithClock fixes the time source for transitions
func WithClock(c core.Clock) Option {
	return func(o *serviceOptions) { o.clock = c }
}

// NewEvaluationService creates a service using policy for scoring and apply defaults
func NewEvaluationService(policy config.Policy, opts ...Option) *EvaluationService {
	o := serviceOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.classifier == nil {
		o.classifier = polarity.NewKeywordClassifier()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	return &EvaluationService{
		engine:    binding.NewEngine(o.classifier, o.logger.Named("binding")),
		validator: testrecord.NewValidator(o.classifier, policy.Scoring.Inflation),
		policy:    policy,
		history:   o.history,
		records:   o.records,
		logger:    o.logger,
		clock:     o.clock.Or(),
		sessions:  make(map[string]*Workspace),
	}
}

// Policy returns the active policy
func (s *EvaluationService) Policy() config.Policy {
	return s.policy
}

func (s *EvaluationService) workspace(sessionID string, create bool) (*Workspace, error) {
	if !core.ValidSession(sessionID) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("session %q is not a valid session token", sessionID))
	}
	s.mu.RLock()
	ws, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return ws, nil
	}
	if !create {
		return nil, apperrors.NotFound("session " + sessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ws, ok = s.sessions[sessionID]; !ok {
		ws = newWorkspace(sessionID)
		s.sessions[sessionID] = ws
	}
	return ws, nil
}

// Sessions lists the ids of every open workspace
func (s *EvaluationService) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RegisterRequest is a batch of session records to add or replace
type RegisterRequest struct {
	Paradox string            `json:"paradox,omitempty"`
	Bundle  validation.Bundle `json:"bundle"`
}

// Register validates the bundle and, only if it is fully valid, merges it into
// the session workspace. Records replace earlier ones with the same id.
// Hypotheses already in the workspace keep their lifecycle state.
func (s *EvaluationService) Register(ctx context.Context, sessionID string, req RegisterRequest) (validation.Report, error) {
	report := validation.ValidateBundle(req.Bundle)
	for i, h := range req.Bundle.Hypotheses {
		if h.SessionID != sessionID {
			report.Errors = append(report.Errors, validation.FieldError{
				Field:   fmt.Sprintf("hypotheses[%d].session_id", i),
				Rule:    "session",
				Message: fmt.Sprintf("%q does not match session %s", h.SessionID, sessionID),
			})
		}
	}
	for i, p := range req.Bundle.Predictions {
		if d := prediction.ValidateDiscriminativePower(p); !d.Discriminative {
			report.Errors = append(report.Errors, validation.FieldError{
				Field:   fmt.Sprintf("predictions[%d]", i),
				Rule:    "discriminative",
				Message: strings.Join(d.Issues, "; "),
			})
		}
	}
	report.Valid = len(report.Errors) == 0
	if !report.Valid {
		return report, apperrors.WithCode(apperrors.CodeValidationError, report.Err())
	}

	ws, err := s.workspace(sessionID, true)
	if err != nil {
		return report, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()

	for _, p := range req.Bundle.Predictions {
		if _, err := ws.predictions.Register(p); err != nil {
			return report, apperrors.WithCode(apperrors.CodeValidationError, err)
		}
	}
	for _, h := range req.Bundle.Hypotheses {
		if existing, ok := ws.hypotheses[h.ID]; ok {
			h.State = existing.State
			h.UpdatedAt = existing.UpdatedAt
		}
		ws.hypotheses[h.ID] = h.Clone()
	}
	for _, t := range req.Bundle.Tests {
		ws.tests[t.ID] = t
	}
	ws.assumptions = append(ws.assumptions, req.Bundle.Assumptions...)
	ws.critiques = append(ws.critiques, req.Bundle.Critiques...)
	if req.Paradox != "" {
		ws.paradox = req.Paradox
	}

	s.logger.Info("session records registered",
		zap.String("session_id", sessionID),
		zap.Int("hypotheses", len(req.Bundle.Hypotheses)),
		zap.Int("predictions", len(req.Bundle.Predictions)),
		zap.Int("tests", len(req.Bundle.Tests)))
	return report, nil
}

// Hypotheses returns the session's hypotheses ordered by id
func (s *EvaluationService) Hypotheses(sessionID string) ([]hypothesis.Hypothesis, error) {
	ws, err := s.workspace(sessionID, false)
	if err != nil {
		return nil, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return sortedHypotheses(ws.hypotheses), nil
}

// Hypothesis returns one hypothesis
func (s *EvaluationService) Hypothesis(sessionID string, id core.HypothesisID) (hypothesis.Hypothesis, error) {
	ws, err := s.workspace(sessionID, false)
	if err != nil {
		return hypothesis.Hypothesis{}, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	h, ok := ws.hypotheses[id]
	if !ok {
		return hypothesis.Hypothesis{}, apperrors.NotFound("hypothesis " + string(id))
	}
	return h.Clone(), nil
}

// TransitionRequest fires a trigger by hand
type TransitionRequest struct {
	Trigger           hypothesis.Trigger `json:"trigger"`
	TestResultID      string             `json:"test_result_id,omitempty"`
	ChildHypothesisID core.HypothesisID  `json:"child_hypothesis_id,omitempty"`
	Reason            string             `json:"reason,omitempty"`
}

// Transition fires a trigger on one hypothesis. Lifecycle refusals come back
// as *lifecycle.TransitionError unchanged.
func (s *EvaluationService) Transition(ctx context.Context, sessionID string, id core.HypothesisID, req TransitionRequest) (lifecycle.Outcome, error) {
	ws, err := s.workspace(sessionID, false)
	if err != nil {
		return lifecycle.Outcome{}, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()

	h, ok := ws.hypotheses[id]
	if !ok {
		return lifecycle.Outcome{}, apperrors.NotFound("hypothesis " + string(id))
	}
	if req.ChildHypothesisID != "" {
		if _, ok := ws.hypotheses[req.ChildHypothesisID]; !ok {
			return lifecycle.Outcome{}, apperrors.NotFound("child hypothesis " + string(req.ChildHypothesisID))
		}
	}

	out, err := lifecycle.Transition(h, req.Trigger, lifecycle.Options{
		TestResultID:      req.TestResultID,
		ChildHypothesisID: req.ChildHypothesisID,
		Reason:            req.Reason,
		Clock:             s.clock,
	})
	if err != nil {
		return lifecycle.Outcome{}, err
	}

	ws.hypotheses[id] = out.Hypothesis
	ws.history.Add(out.Transition)
	s.logger.Info("hypothesis transitioned",
		zap.String("session_id", sessionID),
		zap.String("hypothesis_id", string(id)),
		zap.String("from", string(out.Transition.FromState)),
		zap.String("to", string(out.Transition.ToState)))

	return out, s.persist(ctx, ws)
}

// ExecuteRequest is one observed test run plus how to apply its suggestions
type ExecuteRequest struct {
	Execution binding.ExecutionInput `json:"execution"`
	Apply     bool                   `json:"apply"`
	// Options overrides the policy's apply filter when set
	Options *binding.ApplyOptions `json:"options,omitempty"`
}

// ExecuteTest records a test run against the session's predictions and, when
// asked, applies the resulting suggestions to its hypotheses.
func (s *EvaluationService) ExecuteTest(ctx context.Context, sessionID string, req ExecuteRequest) (binding.ProcessResult, error) {
	ws, err := s.workspace(sessionID, false)
	if err != nil {
		return binding.ProcessResult{}, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()

	test, ok := ws.tests[req.Execution.TestID]
	if !ok {
		return binding.ProcessResult{}, apperrors.NotFound("test " + string(req.Execution.TestID))
	}

	apply := s.policy.Apply.Options()
	if req.Options != nil {
		if err := req.Options.Validate(); err != nil {
			return binding.ProcessResult{}, apperrors.InvalidInput(err.Error())
		}
		apply.MinConfidence = req.Options.MinConfidence
		apply.KillsOnly = req.Options.KillsOnly
	}
	apply.Store = ws.history
	apply.Clock = s.clock

	result, err := s.engine.ProcessTestExecution(req.Execution, test, ws.predictions.All(), ws.hypotheses,
		binding.ProcessOptions{Apply: req.Apply, ApplyOptions: apply})
	if err != nil {
		return binding.ProcessResult{}, apperrors.WithCode(apperrors.CodeInvalidInput, err)
	}

	s.markPredictions(ws, req.Execution)
	if result.Applied == nil {
		return result, nil
	}

	ws.hypotheses = result.Applied.Hypotheses
	return result, s.persist(ctx, ws)
}

// markPredictions stores the tested status of every prediction the run names
func (s *EvaluationService) markPredictions(ws *Workspace, in binding.ExecutionInput) {
	for _, id := range in.MatchedPredictions {
		if err := ws.predictions.SetStatus(id, hypothesis.PredictionMatched); err != nil {
			s.logger.Warn("prediction status not updated", zap.String("prediction_id", string(id)), zap.Error(err))
		}
	}
	for _, id := range in.ViolatedPredictions {
		if err := ws.predictions.SetStatus(id, hypothesis.PredictionViolated); err != nil {
			s.logger.Warn("prediction status not updated", zap.String("prediction_id", string(id)), zap.Error(err))
		}
	}
}

// Predictions lists the session's predictions with their tested status
func (s *EvaluationService) Predictions(sessionID string) ([]hypothesis.Prediction, error) {
	ws, err := s.workspace(sessionID, false)
	if err != nil {
		return nil, err
	}
	return ws.predictions.All(), nil
}

// History returns the session's transition history
func (s *EvaluationService) History(sessionID string) (lifecycle.History, error) {
	ws, err := s.workspace(sessionID, false)
	if err != nil {
		return nil, err
	}
	return ws.history.Export(), nil
}

// TransitionsForResult returns the transitions a test result caused, oldest first
func (s *EvaluationService) TransitionsForResult(sessionID, testResultID string) ([]hypothesis.Transition, error) {
	ws, err := s.workspace(sessionID, false)
	if err != nil {
		return nil, err
	}
	return ws.history.ByTestResult(testResultID), nil
}

// ImportHistory replaces the session's history after validating every entry,
// then replays it onto hypotheses whose state matches the history's start.
func (s *EvaluationService) ImportHistory(ctx context.Context, sessionID string, data lifecycle.History) error {
	ws, err := s.workspace(sessionID, true)
	if err != nil {
		return err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if err := ws.history.Import(data); err != nil {
		return err
	}
	s.replay(ws)
	return s.persist(ctx, ws)
}

// Restore loads the session's history from the repository
func (s *EvaluationService) Restore(ctx context.Context, sessionID string) error {
	if s.history == nil {
		return apperrors.ConfigInvalid("no history repository configured")
	}
	data, err := s.history.LoadHistory(ctx, sessionID)
	if err != nil {
		return apperrors.DatabaseError(err, "failed to restore history")
	}

	ws, err := s.workspace(sessionID, true)
	if err != nil {
		return err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if err := ws.history.Import(data); err != nil {
		return err
	}
	s.replay(ws)
	s.logger.Info("history restored", zap.String("session_id", sessionID), zap.Int("transitions", ws.history.Len()))
	return nil
}

func (s *EvaluationService) replay(ws *Workspace) {
	for _, id := range ws.history.HypothesisIDs() {
		h, ok := ws.hypotheses[id]
		if !ok {
			continue
		}
		list := ws.history.History(id)
		if len(list) == 0 || list[0].FromState != h.State {
			continue
		}
		next, err := lifecycle.Replay(h, list)
		if err != nil {
			s.logger.Warn("history replay stopped", zap.String("hypothesis_id", string(id)), zap.Error(err))
		}
		ws.hypotheses[id] = next
	}
}

func (s *EvaluationService) persist(ctx context.Context, ws *Workspace) error {
	if s.history == nil {
		return nil
	}
	if err := s.history.SaveHistory(ctx, ws.id, ws.history.Export()); err != nil {
		s.logger.Error("history not persisted", zap.String("session_id", ws.id), zap.Error(err))
		return apperrors.DatabaseError(err, "failed to persist history")
	}
	return nil
}

// Snapshot returns the session in the shape the scorer reads
func (s *EvaluationService) Snapshot(sessionID string) (scorecard.Session, error) {
	ws, err := s.workspace(sessionID, false)
	if err != nil {
		return scorecard.Session{}, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()

	tests := make([]hypothesis.TestRecord, 0, len(ws.tests))
	for _, t := range ws.tests {
		tests = append(tests, t)
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].ID < tests[j].ID })

	return scorecard.Session{
		ID:          ws.id,
		Paradox:     ws.paradox,
		Hypotheses:  sortedHypotheses(ws.hypotheses),
		Predictions: ws.predictions.All(),
		Tests:       tests,
		Transitions: ws.history.All(),
		Assumptions: append([]hypothesis.Assumption(nil), ws.assumptions...),
		Critiques:   append([]hypothesis.Critique(nil), ws.critiques...),
	}, nil
}

// ScoreSession grades the session on the seven dimensions
func (s *EvaluationService) ScoreSession(sessionID string) (scorecard.SessionScore, error) {
	snapshot, err := s.Snapshot(sessionID)
	if err != nil {
		return scorecard.SessionScore{}, err
	}
	return scorecard.ScoreSession(snapshot, s.policy.Scoring), nil
}

// ValidateTest runs the test-record checks on one registered test
func (s *EvaluationService) ValidateTest(sessionID string, id core.TestID) (testrecord.Report, error) {
	ws, err := s.workspace(sessionID, false)
	if err != nil {
		return testrecord.Report{}, err
	}
	ws.mu.Lock()
	t, ok := ws.tests[id]
	ws.mu.Unlock()
	if !ok {
		return testrecord.Report{}, apperrors.NotFound("test " + string(id))
	}
	return s.validator.ValidateTest(t), nil
}

// ScoreContributions scores each contribution under the policy and summarizes the set
func (s *EvaluationService) ScoreContributions(contributions []scorecard.Contribution) ([]scorecard.ContributionScore, scorecard.Summary, error) {
	scores := make([]scorecard.ContributionScore, len(contributions))
	for i, c := range contributions {
		scores[i] = s.policy.Scoring.ScoreContribution(c)
	}
	summary, err := scorecard.SummarizeContributions(scores)
	if err != nil {
		return scores, summary, apperrors.Wrap(err, "failed to summarize contributions")
	}
	return scores, summary, nil
}

// SealRecord hashes a session record and stores it
func (s *EvaluationService) SealRecord(ctx context.Context, r session.Record, artifact []byte) (session.Record, error) {
	if s.records == nil {
		return session.Record{}, apperrors.ConfigInvalid("no record repository configured")
	}
	sealed, err := session.Seal(ctx, r, artifact)
	if err != nil {
		return session.Record{}, apperrors.Wrap(err, "failed to seal record")
	}
	if err := s.records.Save(ctx, sealed); err != nil {
		return session.Record{}, apperrors.Wrap(apperrors.WithCode(apperrors.CodeInvalidInput, err), "failed to store record")
	}
	s.logger.Info("session record sealed", zap.String("session_id", sealed.SessionID), zap.String("record_id", string(sealed.ID)))
	return sealed, nil
}

// VerifyRecord reloads a stored record and checks its hashes
func (s *EvaluationService) VerifyRecord(ctx context.Context, sessionID string, id core.RecordID, artifact []byte) (session.Verification, error) {
	if s.records == nil {
		return session.Verification{}, apperrors.ConfigInvalid("no record repository configured")
	}
	r, err := s.records.Load(ctx, sessionID, id)
	if err != nil {
		if core.IsNotFoundError(err) {
			return session.Verification{}, apperrors.NotFound("record " + string(id))
		}
		return session.Verification{}, apperrors.Wrap(err, "failed to load record")
	}
	return session.Verify(ctx, r, artifact)
}

func sortedHypotheses(m map[core.HypothesisID]hypothesis.Hypothesis) []hypothesis.Hypothesis {
	out := make([]hypothesis.Hypothesis, 0, len(m))
	for _, h := range m {
		out = append(out, h.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
