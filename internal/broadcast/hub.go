// Package broadcast fans out live samples to subscribers over bounded
// per-subscriber buffers. A slow consumer loses its oldest samples instead
// of blocking the publisher or growing without bound.
package broadcast

import (
	"sync"
	"time"

	"github.com/pv/obd-monitor-go/internal/telemetry"
)

// DefaultCapacity is the per-subscriber buffer size
const DefaultCapacity = 256

// Hub owns the subscriber set and publishes sample batches to it.
type Hub struct {
	capacity int

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Subscribe attaches a new consumer and returns its handle
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		hub:     h,
		ch:      make(chan telemetry.Sample, h.capacity),
		created: time.Now(),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Publish offers a batch to every current subscriber independently.
// Never blocks: a full buffer evicts its oldest sample to make room.
// Holding the read lock for the whole batch means a subscriber either
// receives the entire batch or, if removed first, none of it.
func (h *Hub) Publish(samples []telemetry.Sample) {
	if len(samples) == 0 {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		for _, sample := range samples {
			sub.offer(sample)
		}
	}
}

// Count returns the number of attached subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Shutdown detaches every subscriber
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Subscription is one consumer's bounded view of the sample stream.
// The channel closes only when the subscription is detached.
type Subscription struct {
	hub     *Hub
	ch      chan telemetry.Sample
	created time.Time
}

// C is the sample stream. It never ends on its own; Close terminates it.
func (s *Subscription) C() <-chan telemetry.Sample {
	return s.ch
}

// Created returns when the subscription was attached
func (s *Subscription) Created() time.Time {
	return s.created
}

// Close detaches the subscription from the hub. Idempotent.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// offer enqueues one sample, evicting the oldest buffered sample when the
// buffer is full. Runs under the hub's read lock, so it never races a close.
func (s *Subscription) offer(sample telemetry.Sample) {
	select {
	case s.ch <- sample:
		return
	default:
	}

	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- sample:
	default:
	}
}
