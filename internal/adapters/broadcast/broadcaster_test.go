package broadcast

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

func snapshot(pollID uuid.UUID, total int64) domain.Poll {
	return domain.Poll{ID: pollID, Question: "q", TotalVotes: total}
}

func drain(m *Mailbox) []domain.Poll {
	var out []domain.Poll
	for {
		select {
		case s, ok := <-m.C():
			if !ok {
				return out
			}
			out = append(out, s)
		default:
			return out
		}
	}
}

func TestHub_FanOutToCurrentSubscribersOnly(t *testing.T) {
	hub := NewHub(nil)
	pollID := uuid.New()
	a, b, c := NewMailbox(4), NewMailbox(4), NewMailbox(4)

	hub.Subscribe(pollID, a)
	hub.Subscribe(pollID, b)
	hub.Publish(pollID, snapshot(pollID, 1))
	hub.Subscribe(pollID, c)

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(c))
	assert.Equal(t, uint64(2), hub.Stats().Delivered)
}

func TestHub_PollsAreIndependent(t *testing.T) {
	hub := NewHub(nil)
	first, second := uuid.New(), uuid.New()
	m := NewMailbox(4)

	hub.Subscribe(first, m)
	hub.Publish(second, snapshot(second, 1))

	assert.Empty(t, drain(m))
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	pollID := uuid.New()
	m := NewMailbox(4)

	hub.Subscribe(pollID, m)
	hub.Subscribe(pollID, m)
	assert.Equal(t, 1, hub.Subscribers(pollID))

	hub.Unsubscribe(pollID, m)
	hub.Unsubscribe(pollID, m)
	hub.Unsubscribe(uuid.New(), m)
	assert.Zero(t, hub.Subscribers(pollID))

	hub.Publish(pollID, snapshot(pollID, 1))
	assert.Empty(t, drain(m))
}

func TestHub_DropRemovesEverySubscription(t *testing.T) {
	hub := NewHub(nil)
	pollID := uuid.New()
	a, b := NewMailbox(4), NewMailbox(4)

	hub.Subscribe(pollID, a)
	hub.Subscribe(pollID, b)
	hub.Drop(pollID)

	hub.Publish(pollID, snapshot(pollID, 1))
	assert.Zero(t, hub.Subscribers(pollID))
	assert.Empty(t, drain(a))
	assert.Empty(t, drain(b))
}

func TestHub_FullMailboxDropsWithoutBlocking(t *testing.T) {
	hub := NewHub(nil)
	pollID := uuid.New()
	slow, fast := NewMailbox(1), NewMailbox(4)

	hub.Subscribe(pollID, slow)
	hub.Subscribe(pollID, fast)
	for i := int64(1); i <= 3; i++ {
		hub.Publish(pollID, snapshot(pollID, i))
	}

	got := drain(slow)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].TotalVotes)
	assert.Len(t, drain(fast), 3)

	stats := hub.Stats()
	assert.Equal(t, uint64(4), stats.Delivered)
	assert.Equal(t, uint64(2), stats.Dropped)
}

func TestHub_DeliveryKeepsPublishOrder(t *testing.T) {
	hub := NewHub(nil)
	pollID := uuid.New()
	m := NewMailbox(8)
	hub.Subscribe(pollID, m)

	for i := int64(1); i <= 5; i++ {
		hub.Publish(pollID, snapshot(pollID, i))
	}

	got := drain(m)
	require.Len(t, got, 5)
	for i, s := range got {
		assert.Equal(t, int64(i+1), s.TotalVotes)
	}
}

func TestHub_ConcurrentSubscribeAndPublish(t *testing.T) {
	hub := NewHub(nil)
	pollID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m := NewMailbox(1)
			hub.Subscribe(pollID, m)
			hub.Unsubscribe(pollID, m)
		}()
		go func() {
			defer wg.Done()
			hub.Publish(pollID, snapshot(pollID, 1))
		}()
	}
	wg.Wait()

	assert.Zero(t, hub.Subscribers(pollID))
}

func TestMailbox_CloseIsIdempotent(t *testing.T) {
	m := NewMailbox(2)
	assert.True(t, m.Notify(domain.Poll{}))

	m.Close()
	m.Close()

	assert.False(t, m.Notify(domain.Poll{}))
	_, ok := <-m.C()
	assert.True(t, ok)
	_, ok = <-m.C()
	assert.False(t, ok)
}
