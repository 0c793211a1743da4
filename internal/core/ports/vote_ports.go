package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

type VoteInput struct {
	PollID   uuid.UUID
	OptionID uuid.UUID
}

type VoteService interface {
	// Vote applies one vote and returns the committed snapshot.
	Vote(ctx context.Context, input VoteInput) (*domain.Poll, error)
}
