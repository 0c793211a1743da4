package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"go.uber.org/zap"
)

// Hub keeps an independent observer set per poll and fans committed snapshots out to them.
type Hub struct {
	mu     sync.RWMutex
	topics map[uuid.UUID]map[ports.Observer]struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64

	log *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		topics: make(map[uuid.UUID]map[ports.Observer]struct{}),
		log:    log,
	}
}

var _ ports.Broadcaster = (*Hub)(nil)

func (h *Hub) Subscribe(pollID uuid.UUID, observer ports.Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.topics[pollID]
	if !ok {
		set = make(map[ports.Observer]struct{})
		h.topics[pollID] = set
	}
	set[observer] = struct{}{}
}

func (h *Hub) Unsubscribe(pollID uuid.UUID, observer ports.Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.topics[pollID]
	if !ok {
		return
	}
	delete(set, observer)
	if len(set) == 0 {
		delete(h.topics, pollID)
	}
}

// Publish delivers the snapshot at most once to every observer subscribed at the time of the
// call. Observers that cannot accept it lose the update.
func (h *Hub) Publish(pollID uuid.UUID, snapshot domain.Poll) {
	h.mu.RLock()
	set := h.topics[pollID]
	targets := make([]ports.Observer, 0, len(set))
	for observer := range set {
		targets = append(targets, observer)
	}
	h.mu.RUnlock()

	for _, observer := range targets {
		if observer.Notify(snapshot.Clone()) {
			h.delivered.Add(1)
			continue
		}
		h.dropped.Add(1)
		h.log.Warn("dropped poll update",
			zap.String("poll_id", pollID.String()),
			zap.Int64("total_votes", snapshot.TotalVotes))
	}
}

func (h *Hub) Drop(pollID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.topics, pollID)
}

// Subscribers reports how many observers are registered for a poll.
func (h *Hub) Subscribers(pollID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[pollID])
}

type Stats struct {
	Delivered uint64
	Dropped   uint64
}

func (h *Hub) Stats() Stats {
	return Stats{
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}
