package ports

import (
	"context"

	"hypolab/domain/core"
	"hypolab/internal/session"
)

// RecordRepository stores sealed session records
type RecordRepository interface {
	Save(ctx context.Context, r session.Record) error
	Load(ctx context.Context, sessionID string, id core.RecordID) (session.Record, error)
	List(ctx context.Context, sessionID string) ([]core.RecordID, error)
	Delete(ctx context.Context, sessionID string, id core.RecordID) error
}

var _ RecordRepository = (*session.FileStore)(nil)
