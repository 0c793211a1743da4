package ports

import (
	"context"

	"github.com/google/uuid"
)

type TallyMismatch struct {
	PollID       uuid.UUID
	TotalVotes   int64
	CountedVotes int64
}

type AuditService interface {
	AuditAll(ctx context.Context) ([]TallyMismatch, error)
}
