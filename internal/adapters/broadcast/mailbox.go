package broadcast

import (
	"sync"

	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

// Mailbox is a bounded queue of snapshots drained by a single consumer.
type Mailbox struct {
	ch     chan domain.Poll
	mu     sync.RWMutex
	closed bool
}

func NewMailbox(size int) *Mailbox {
	if size < 1 {
		size = 1
	}
	return &Mailbox{ch: make(chan domain.Poll, size)}
}

// Notify never blocks. It returns false when the mailbox is full or closed.
func (m *Mailbox) Notify(snapshot domain.Poll) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false
	}

	select {
	case m.ch <- snapshot:
		return true
	default:
		return false
	}
}

func (m *Mailbox) C() <-chan domain.Poll {
	return m.ch
}

func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}
