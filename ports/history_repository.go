package ports

import (
	"context"

	"hypolab/domain/hypothesis"
	"hypolab/internal/lifecycle"
)

// HistoryRepository persists snapshots of a session's transition history
type HistoryRepository interface {
	// SaveHistory replaces the session's stored transitions with history
	SaveHistory(ctx context.Context, sessionID string, history lifecycle.History) error

	// LoadHistory returns the stored history of a session in its persisted shape
	LoadHistory(ctx context.Context, sessionID string) (lifecycle.History, error)

	// ListByTestResult returns every stored transition citing the test result, oldest first
	ListByTestResult(ctx context.Context, testResultID string) ([]hypothesis.Transition, error)

	// DeleteHistory removes every transition stored for the session
	DeleteHistory(ctx context.Context, sessionID string) error
}
