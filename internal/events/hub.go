// Package events fans committed swarm events out to live subscribers and
// external streams.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ssd-technologies/swarmgov/internal/swarm"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Subscription is a live event feed. Events that do not fit in the buffer
// are dropped for this subscriber only.
type Subscription struct {
	ID string
	C  <-chan swarm.Event

	ch      chan swarm.Event
	mu      sync.RWMutex
	filter  map[swarm.EventType]bool
	dropped atomic.Uint64
}

// SetFilter restricts the subscription to the given event types. No types
// means every event.
func (s *Subscription) SetFilter(types ...swarm.EventType) {
	var filter map[swarm.EventType]bool
	if len(types) > 0 {
		filter = make(map[swarm.EventType]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}
	s.mu.Lock()
	s.filter = filter
	s.mu.Unlock()
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) wants(t swarm.EventType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter == nil || s.filter[t]
}

// Hub is an in-process swarm.Publisher that delivers events to subscribers
// without ever blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	logger *slog.Logger
}

var _ swarm.Publisher = (*Hub)(nil)

// NewHub returns an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default().With("component", "events")
	}
	return &Hub{subs: make(map[string]*Subscription), logger: logger}
}

// Subscribe registers a new subscription with the given buffer size,
// optionally filtered to types.
func (h *Hub) Subscribe(buffer int, types ...swarm.EventType) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan swarm.Event, buffer)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch}
	sub.SetFilter(types...)

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.ID]; !ok {
		return
	}
	delete(h.subs, sub.ID)
	close(sub.ch)
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish implements swarm.Publisher.
func (h *Hub) Publish(_ context.Context, ev swarm.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			if sub.dropped.Add(1) == 1 {
				h.logger.Warn("subscriber too slow, dropping events", "subscriber", sub.ID)
			}
		}
	}
	return nil
}
