package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"

	"hypolab/domain/core"
	"hypolab/domain/hypothesis"
	apperrors "hypolab/internal/errors"
	"hypolab/internal/lifecycle"
	"hypolab/ports"
)

// timestamps are stored as fixed-width UTC text so both drivers sort and scan them alike
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// HistoryRepositoryImpl implements HistoryRepository on any sqlx database
type HistoryRepositoryImpl struct {
	db *sqlx.DB
}

// NewHistoryRepository creates a new SQL transition history repository
func NewHistoryRepository(db *sqlx.DB) ports.HistoryRepository {
	return &HistoryRepositoryImpl{db: db}
}

type transitionRow struct {
	ID                string `db:"id"`
	SessionID         string `db:"session_id"`
	HypothesisID      string `db:"hypothesis_id"`
	Seq               int    `db:"seq"`
	FromState         string `db:"from_state"`
	ToState           string `db:"to_state"`
	Trigger           string `db:"trigger_name"`
	TestResultID      string `db:"test_result_id"`
	ChildHypothesisID string `db:"child_hypothesis_id"`
	Reason            string `db:"reason"`
	OccurredAt        string `db:"occurred_at"`
}

func toRow(sessionID string, seq int, tr hypothesis.Transition) transitionRow {
	return transitionRow{
		ID:                tr.ID.String(),
		SessionID:         sessionID,
		HypothesisID:      tr.HypothesisID.String(),
		Seq:               seq,
		FromState:         string(tr.FromState),
		ToState:           string(tr.ToState),
		Trigger:           string(tr.Trigger),
		TestResultID:      tr.TestResultID,
		ChildHypothesisID: tr.ChildHypothesisID.String(),
		Reason:            tr.Reason,
		OccurredAt:        tr.Timestamp.UTC().Format(timeLayout),
	}
}

func (r transitionRow) transition() (hypothesis.Transition, error) {
	at, err := time.Parse(timeLayout, r.OccurredAt)
	if err != nil {
		return hypothesis.Transition{}, eris.Wrapf(err, "transition %s has a bad timestamp", r.ID)
	}
	return hypothesis.Transition{
		ID:                core.ID(r.ID),
		HypothesisID:      core.HypothesisID(r.HypothesisID),
		FromState:         hypothesis.State(r.FromState),
		ToState:           hypothesis.State(r.ToState),
		Trigger:           hypothesis.Trigger(r.Trigger),
		TestResultID:      r.TestResultID,
		ChildHypothesisID: core.HypothesisID(r.ChildHypothesisID),
		Reason:            r.Reason,
		Timestamp:         at,
	}, nil
}

// SaveHistory replaces the session's stored transitions with history in one
// transaction. Each hypothesis' list position becomes its seq so reloads keep
// the original order.
func (r *HistoryRepositoryImpl) SaveHistory(ctx context.Context, sessionID string, history lifecycle.History) error {
	if !core.ValidSession(sessionID) {
		return fmt.Errorf("%w: session %q", core.ErrMalformedID, sessionID)
	}
	for id, list := range history {
		for i, tr := range list {
			if tr.HypothesisID != id {
				return apperrors.InvalidHistory(string(id), i, "transition belongs to "+string(tr.HypothesisID))
			}
			if err := lifecycle.ValidateRecord(tr); err != nil {
				return apperrors.InvalidHistory(string(id), i, err.Error())
			}
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`DELETE FROM hypothesis_transitions WHERE session_id = ?`), sessionID); err != nil {
		return eris.Wrapf(err, "failed to clear stored transitions for %s", sessionID)
	}

	for _, list := range history {
		for i, tr := range list {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO hypothesis_transitions (
					id, session_id, hypothesis_id, seq, from_state, to_state, trigger_name,
					test_result_id, child_hypothesis_id, reason, occurred_at
				) VALUES (
					:id, :session_id, :hypothesis_id, :seq, :from_state, :to_state, :trigger_name,
					:test_result_id, :child_hypothesis_id, :reason, :occurred_at
				)`, toRow(sessionID, i, tr))
			if err != nil {
				return eris.Wrapf(err, "failed to insert transition %s", tr.ID)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "failed to commit history")
	}
	return nil
}

// LoadHistory returns the stored history of a session. An unknown session yields an empty history.
func (r *HistoryRepositoryImpl) LoadHistory(ctx context.Context, sessionID string) (lifecycle.History, error) {
	var rows []transitionRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, session_id, hypothesis_id, seq, from_state, to_state, trigger_name,
			   test_result_id, child_hypothesis_id, reason, occurred_at
		FROM hypothesis_transitions
		WHERE session_id = ?
		ORDER BY hypothesis_id, seq`), sessionID)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to load history for %s", sessionID)
	}

	history := make(lifecycle.History)
	for _, row := range rows {
		tr, err := row.transition()
		if err != nil {
			return nil, err
		}
		history[tr.HypothesisID] = append(history[tr.HypothesisID], tr)
	}
	return history, nil
}

// ListByTestResult returns the stored transitions that cite a test result, oldest first
func (r *HistoryRepositoryImpl) ListByTestResult(ctx context.Context, testResultID string) ([]hypothesis.Transition, error) {
	var rows []transitionRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, session_id, hypothesis_id, seq, from_state, to_state, trigger_name,
			   test_result_id, child_hypothesis_id, reason, occurred_at
		FROM hypothesis_transitions
		WHERE test_result_id = ?
		ORDER BY occurred_at, hypothesis_id, seq`), testResultID)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to list transitions for %s", testResultID)
	}

	out := make([]hypothesis.Transition, 0, len(rows))
	for _, row := range rows {
		tr, err := row.transition()
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}

// DeleteHistory removes a session's transitions
func (r *HistoryRepositoryImpl) DeleteHistory(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM hypothesis_transitions WHERE session_id = ?`), sessionID)
	if err != nil {
		return eris.Wrapf(err, "failed to delete history for %s", sessionID)
	}
	return nil
}
