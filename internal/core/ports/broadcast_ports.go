package ports

import (
	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

// Observer receives poll snapshots. Notify must not block; it reports whether the
// snapshot was accepted.
type Observer interface {
	Notify(snapshot domain.Poll) bool
}

type Broadcaster interface {
	Subscribe(pollID uuid.UUID, observer Observer)
	Unsubscribe(pollID uuid.UUID, observer Observer)
	Publish(pollID uuid.UUID, snapshot domain.Poll)
	// Drop removes every subscription for a deleted poll.
	Drop(pollID uuid.UUID)
}
