package events

import (
	"context"
	"sync"
)

const subscriberBuffer = 32

// Hub delivers events to live subscribers of a learner. Slow subscribers
// lose events rather than block the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch chan Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers for the learner's events. The channel is closed by
// cancel or when the hub closes.
func (h *Hub) Subscribe(learnerID string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	if h.subs[learnerID] == nil {
		h.subs[learnerID] = make(map[*subscriber]struct{})
	}
	h.subs[learnerID][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			set, ok := h.subs[learnerID]
			if !ok {
				return
			}
			if _, ok := set[s]; !ok {
				return
			}
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, learnerID)
			}
			close(s.ch)
		})
	}
}

// LogEvent publishes the event to the learner's subscribers.
func (h *Hub) LogEvent(_ context.Context, event Event) error {
	if err := validate(event); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[event.LearnerID] {
		select {
		case s.ch <- event:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for a learner.
func (h *Hub) Subscribers(learnerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[learnerID])
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for learnerID, set := range h.subs {
		for s := range set {
			close(s.ch)
		}
		delete(h.subs, learnerID)
	}
}
