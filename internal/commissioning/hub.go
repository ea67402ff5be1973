package commissioning

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// subscriberQueueSize bounds each subscriber's outbound buffer; a full
// buffer means the subscriber is falling behind and the hub drops rather
// than blocks the publisher (§4.6).
const subscriberQueueSize = 32

// Subscription is the handle returned by Hub.Subscribe (§4.3's
// SubscriptionHandle). Consume Events in a per-subscriber goroutine.
type Subscription struct {
	id     string
	Events <-chan Notification
}

// ID returns the subscription handle's identifier, stable for the
// lifetime of the subscription.
func (s *Subscription) ID() string { return s.id }

// Hub fans out Notifications to every subscribed session (C7).
// Delivery is best-effort per subscriber and never blocks Publish;
// ordering is preserved per subscriber because each subscriber has its
// own buffered channel and Publish iterates subscribers under a single
// lock, in subscribe order.
type Hub struct {
	log zerolog.Logger

	mu      sync.Mutex
	subs    map[string]chan Notification
	dropped map[string]int
}

// NewHub creates an empty notification hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log.With().Str("component", "hub").Logger(),
		subs:    make(map[string]chan Notification),
		dropped: make(map[string]int),
	}
}

// Subscribe registers a new subscriber and returns its handle.
func (h *Hub) Subscribe() *Subscription {
	id := uuid.NewString()
	ch := make(chan Notification, subscriberQueueSize)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	return &Subscription{id: id, Events: ch}
}

// Unsubscribe removes a subscriber. Idempotent.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if ch, ok := h.subs[sub.id]; ok {
		delete(h.subs, sub.id)
		delete(h.dropped, sub.id)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish fans n out to every current subscriber without blocking. A
// subscriber whose buffer is full has the event dropped and counted;
// Publish itself never waits on a slow consumer.
func (h *Hub) Publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			h.dropped[id]++
			h.log.Warn().Str("subscription", id).Str("method", n.Method()).Int("dropped_total", h.dropped[id]).Msg("dropping notification, subscriber buffer full")
		}
	}
}

// DroppedCount reports how many notifications have been dropped for a
// given subscription, for tests and diagnostics.
func (h *Hub) DroppedCount(sub *Subscription) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped[sub.id]
}
