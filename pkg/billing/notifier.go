package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StatusChange is published after a status write commits. Interested
// subscribers (a live-status channel, audit trail, etc.) consume it; the
// reconciliation outcome never depends on delivery.
type StatusChange struct {
	SubscriptionID uuid.UUID
	AccountID      uuid.UUID
	ProviderSubID  string
	From           Status
	To             Status
	OccurredAt     time.Time
}

// StatusNotifier is the outbound port for post-commit notifications. A
// failed or dropped notification must not fail the reconciliation.
type StatusNotifier interface {
	NotifyStatusChange(ctx context.Context, change StatusChange)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyStatusChange(context.Context, StatusChange) {}

// StatusHub is an in-process StatusNotifier fanning changes out to
// channel subscribers. Sends never block: slow consumers lose messages
// rather than stalling the reconciliation path.
type StatusHub struct {
	mu     sync.RWMutex
	subs   map[int]chan StatusChange
	nextID int
	closed bool
	buffer int
}

// NewStatusHub creates a hub with the given per-subscriber buffer size.
func NewStatusHub(buffer int) *StatusHub {
	if buffer < 1 {
		buffer = 16
	}
	return &StatusHub{
		subs:   make(map[int]chan StatusChange),
		buffer: buffer,
	}
}

// Subscribe registers a receiver. The subscription is removed and its
// channel closed when ctx is cancelled or the hub is closed.
func (h *StatusHub) Subscribe(ctx context.Context) <-chan StatusChange {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan StatusChange, h.buffer)
	if h.closed {
		close(ch)
		return ch
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}()

	return ch
}

func (h *StatusHub) NotifyStatusChange(_ context.Context, change StatusChange) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- change:
		default: // drop for slow consumers
		}
	}
}

// Close shuts down the hub and closes all subscriber channels.
func (h *StatusHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
