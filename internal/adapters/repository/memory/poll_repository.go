package memory

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"go.uber.org/zap"
)

// record owns one poll. current is replaced wholesale on every vote so readers never
// observe a half-applied update.
type record struct {
	mu      sync.Mutex
	deleted bool
	current atomic.Pointer[domain.Poll]
}

type pollRepository struct {
	mu    sync.RWMutex
	polls map[uuid.UUID]*record
	log   *zap.Logger
}

func NewPollRepository(log *zap.Logger) ports.PollRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &pollRepository{
		polls: make(map[uuid.UUID]*record),
		log:   log,
	}
}

func (r *pollRepository) Save(ctx context.Context, poll *domain.Poll) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := poll.Clone()
	rec := &record{}
	rec.current.Store(&snapshot)

	r.mu.Lock()
	r.polls[poll.ID] = rec
	r.mu.Unlock()

	r.log.Debug("poll saved", zap.String("poll_id", poll.ID.String()))
	return nil
}

func (r *pollRepository) lookup(id uuid.UUID) (*record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.polls[id]
	return rec, ok
}

func (r *pollRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec, ok := r.lookup(id)
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	poll := rec.current.Load().Clone()
	return &poll, nil
}

func (r *pollRepository) List(ctx context.Context) ([]*domain.Poll, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	polls := make([]*domain.Poll, 0, len(r.polls))
	for _, rec := range r.polls {
		poll := rec.current.Load().Clone()
		polls = append(polls, &poll)
	}
	r.mu.RUnlock()

	slices.SortFunc(polls, func(a, b *domain.Poll) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return polls, nil
}

func (r *pollRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	rec, ok := r.polls[id]
	if ok {
		delete(r.polls, id)
	}
	r.mu.Unlock()
	if !ok {
		return domain.ErrPollNotFound
	}

	rec.mu.Lock()
	rec.deleted = true
	rec.mu.Unlock()

	r.log.Debug("poll deleted", zap.String("poll_id", id.String()))
	return nil
}

// ApplyVote serializes writers on the poll's own lock, so it never reports a write conflict.
func (r *pollRepository) ApplyVote(ctx context.Context, pollID, optionID uuid.UUID, at time.Time) (*domain.Poll, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec, ok := r.lookup(pollID)
	if !ok {
		return nil, domain.ErrPollNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.deleted {
		return nil, domain.ErrPollNotFound
	}

	current := rec.current.Load()
	if !current.IsVotable(at) {
		return nil, domain.ErrPollExpired
	}

	next := current.Clone()
	idx := slices.IndexFunc(next.Options, func(o domain.Option) bool { return o.ID == optionID })
	if idx < 0 {
		return nil, domain.ErrOptionNotFound
	}
	next.Options[idx].Votes++
	next.TotalVotes++
	next.Version++
	rec.current.Store(&next)

	r.log.Debug("vote applied",
		zap.String("poll_id", pollID.String()),
		zap.String("option_id", optionID.String()),
		zap.Int64("version", next.Version))

	committed := next.Clone()
	return &committed, nil
}

func (r *pollRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}
