package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeRepo serializes every call and can be told to fail the next N applies with a
// write conflict.
type fakeRepo struct {
	mu        sync.Mutex
	polls     map[uuid.UUID]*domain.Poll
	conflicts int
	applies   int
	pingErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{polls: make(map[uuid.UUID]*domain.Poll)}
}

func (r *fakeRepo) Save(_ context.Context, poll *domain.Poll) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := poll.Clone()
	r.polls[poll.ID] = &c
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Poll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	poll, ok := r.polls[id]
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	c := poll.Clone()
	return &c, nil
}

func (r *fakeRepo) List(_ context.Context) ([]*domain.Poll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Poll, 0, len(r.polls))
	for _, poll := range r.polls {
		c := poll.Clone()
		out = append(out, &c)
	}
	return out, nil
}

func (r *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.polls[id]; !ok {
		return domain.ErrPollNotFound
	}
	delete(r.polls, id)
	return nil
}

func (r *fakeRepo) ApplyVote(_ context.Context, pollID, optionID uuid.UUID, at time.Time) (*domain.Poll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applies++

	if r.conflicts > 0 {
		r.conflicts--
		return nil, domain.ErrWriteConflict
	}

	poll, ok := r.polls[pollID]
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	if !poll.IsVotable(at) {
		return nil, domain.ErrPollExpired
	}
	for i := range poll.Options {
		if poll.Options[i].ID == optionID {
			poll.Options[i].Votes++
			poll.TotalVotes++
			poll.Version++
			c := poll.Clone()
			return &c, nil
		}
	}
	return nil, domain.ErrOptionNotFound
}

func (r *fakeRepo) Ping(context.Context) error {
	return r.pingErr
}

func (r *fakeRepo) corrupt(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls[id].TotalVotes += 3
}

type recordingBroadcaster struct {
	mu        sync.Mutex
	published []domain.Poll
	dropped   []uuid.UUID
}

func (b *recordingBroadcaster) Subscribe(uuid.UUID, ports.Observer)   {}
func (b *recordingBroadcaster) Unsubscribe(uuid.UUID, ports.Observer) {}

func (b *recordingBroadcaster) Publish(_ uuid.UUID, snapshot domain.Poll) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, snapshot)
}

func (b *recordingBroadcaster) Drop(pollID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropped = append(b.dropped, pollID)
}
