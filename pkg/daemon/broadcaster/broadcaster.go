// Package broadcaster fans analysis progress out to the clients watching a
// request.
package broadcaster

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/analyzer"
)

// eventBuffer is the per-subscriber channel size. Reports beyond it are
// dropped; progress is advisory.
const eventBuffer = 64

// Subscriber receives the progress of one request.
type Subscriber struct {
	ID        string
	RequestID string
	Events    chan analyzer.Progress
}

// Broadcaster manages subscribers and distributes progress reports.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe watches the request with the given ID. It returns nil once
// the broadcaster is closed.
func (b *Broadcaster) Subscribe(requestID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:        uuid.New().String(),
		RequestID: requestID,
		Events:    make(chan analyzer.Progress, eventBuffer),
	}

	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Notify sends p to every subscriber of requestID without blocking.
func (b *Broadcaster) Notify(requestID string, p analyzer.Progress) {
	if requestID == "" {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if sub.RequestID != requestID {
			continue
		}
		select {
		case sub.Events <- p:
		default:
			// Channel full, report dropped
		}
	}
}

// Finish ends every subscription to requestID. Buffered reports are still
// delivered before the channel reads as closed.
func (b *Broadcaster) Finish(requestID string) {
	if requestID == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		if sub.RequestID == requestID {
			close(sub.Events)
			delete(b.subscribers, id)
		}
	}
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
