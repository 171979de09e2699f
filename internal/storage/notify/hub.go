// Package notify fans document changes out to subscribers.
//
// Each subscriber owns a goroutine and a single pending slot: when a
// subscriber falls behind, intermediate versions are replaced by the newest
// one. Documents are whole snapshots, so only the latest matters.
package notify

import (
	"sync"

	"github.com/mmynk/splitsync/internal/models"
)

// Hub tracks subscribers per group.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription is one registered callback. It implements storage.Subscription.
type Subscription struct {
	hub     *Hub
	groupID string
	fn      func(*models.Ledger)

	mu        sync.Mutex
	pending   *models.Ledger
	hasValue  bool
	delivered bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// Register adds fn as a subscriber of groupID and starts its delivery loop.
// The caller is expected to follow up with DeliverInitial.
func (h *Hub) Register(groupID string, fn func(*models.Ledger)) *Subscription {
	s := &Subscription{
		hub:     h,
		groupID: groupID,
		fn:      fn,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.done)
		return s
	}
	if h.subs[groupID] == nil {
		h.subs[groupID] = make(map[*Subscription]struct{})
	}
	h.subs[groupID][s] = struct{}{}
	h.mu.Unlock()

	go s.run()
	return s
}

// Publish delivers a copy of ledger (nil for absent) to every subscriber of groupID.
func (h *Hub) Publish(groupID string, ledger *models.Ledger) {
	h.mu.Lock()
	targets := make([]*Subscription, 0, len(h.subs[groupID]))
	for s := range h.subs[groupID] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.push(ledger.Clone(), false)
	}
}

// Count returns the number of live subscriptions across all groups.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}

// Watched reports whether groupID has at least one subscriber.
func (h *Hub) Watched(groupID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[groupID]) > 0
}

// Groups returns the group IDs that currently have subscribers.
func (h *Hub) Groups() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	groups := make([]string, 0, len(h.subs))
	for g := range h.subs {
		groups = append(groups, g)
	}
	return groups
}

// Close unsubscribes everyone. Later registrations receive nothing.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription
	for _, subs := range h.subs {
		for s := range subs {
			all = append(all, s)
		}
	}
	h.subs = make(map[string]map[*Subscription]struct{})
	h.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
}

// DeliverInitial delivers the state read at subscription time, unless a
// published version already reached this subscriber.
func (s *Subscription) DeliverInitial(ledger *models.Ledger) {
	s.push(ledger.Clone(), true)
}

// Unsubscribe stops deliveries. A callback already running finishes.
func (s *Subscription) Unsubscribe() {
	s.hub.mu.Lock()
	if subs := s.hub.subs[s.groupID]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.hub.subs, s.groupID)
		}
	}
	s.hub.mu.Unlock()
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) push(ledger *models.Ledger, initial bool) {
	s.mu.Lock()
	if initial && (s.delivered || s.hasValue) {
		s.mu.Unlock()
		return
	}
	s.pending = ledger
	s.hasValue = true
	s.delivered = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		ledger, ok := s.pending, s.hasValue
		s.pending, s.hasValue = nil, false
		s.mu.Unlock()

		select {
		case <-s.done:
			return
		default:
		}
		if ok {
			s.fn(ledger)
		}
	}
}
