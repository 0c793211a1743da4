package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

// PollRepository is the durable owner of poll records.
//
// ApplyVote is the only mutation after creation. In one indivisible step it checks that the
// poll exists, that optionID belongs to it, and that it is still votable at the given instant,
// then increments that option and the poll total. Implementations report a lost race with
// domain.ErrWriteConflict and leave the record untouched.
type PollRepository interface {
	Save(ctx context.Context, poll *domain.Poll) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error)
	List(ctx context.Context) ([]*domain.Poll, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ApplyVote(ctx context.Context, pollID, optionID uuid.UUID, at time.Time) (*domain.Poll, error)
	Ping(ctx context.Context) error
}

type CreatePollInput struct {
	Question  string
	Options   []string
	ExpiresAt *time.Time
}

type PollService interface {
	Create(ctx context.Context, input CreatePollInput) (*domain.Poll, error)
	GetPoll(ctx context.Context, id string) (*domain.Poll, error)
	ListPolls(ctx context.Context) ([]*domain.Poll, error)
	DeletePoll(ctx context.Context, id string) error
	Health(ctx context.Context) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
