package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/shok8899/hq11/pkg/models"
)

// Subscriber is one live downstream consumer. Push must not block; an error
// means the record could not be delivered and the subscriber is dropped.
type Subscriber interface {
	ID() string
	Push(rec models.PriceRecord) error
	Prime(snapshot []models.PriceRecord)
	Close()
}

// Observer receives registry events, typically for metrics.
// SubscribersChanged is called with the hub locked, in the order the changes
// happened; it must not call back into the hub.
type Observer interface {
	SubscribersChanged(n int)
	DeliveryFailed()
}

type nopObserver struct{}

func (nopObserver) SubscribersChanged(int) {}
func (nopObserver) DeliveryFailed()        {}

// Hub is the registry of live subscribers.
//
// Registering the same handle twice is a no-op. ForEachLive works on a copy of
// the live set, so subscribers may register or leave while a broadcast is in
// flight; such a subscriber may or may not see that broadcast.
type Hub struct {
	subscribers map[Subscriber]struct{}
	logger      *zap.Logger
	observer    Observer
	mu          sync.RWMutex
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[Subscriber]struct{}),
		logger:      logger,
		observer:    nopObserver{},
	}
}

// WithObserver must be called before the hub is shared.
func (h *Hub) WithObserver(o Observer) *Hub {
	if o != nil {
		h.observer = o
	}
	return h
}

// Register adds sub to the live set and reports whether it was new.
func (h *Hub) Register(sub Subscriber) bool {
	h.mu.Lock()
	if _, ok := h.subscribers[sub]; ok {
		h.mu.Unlock()
		return false
	}
	h.subscribers[sub] = struct{}{}
	n := len(h.subscribers)
	h.observer.SubscribersChanged(n)
	h.mu.Unlock()

	h.logger.Debug("Subscriber registered", zap.String("id", sub.ID()), zap.Int("live", n))
	return true
}

// Unregister removes sub and closes it. It is a no-op if sub is not registered.
func (h *Hub) Unregister(sub Subscriber) bool {
	h.mu.Lock()
	if _, ok := h.subscribers[sub]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.subscribers, sub)
	n := len(h.subscribers)
	h.observer.SubscribersChanged(n)
	h.mu.Unlock()

	sub.Close()
	h.logger.Debug("Subscriber unregistered", zap.String("id", sub.ID()), zap.Int("live", n))
	return true
}

// ForEachLive calls fn for every subscriber live at call time. An error from
// fn is a delivery failure for that subscriber alone: it is unregistered and
// the loop moves on. Returns the number of successful calls.
func (h *Hub) ForEachLive(fn func(Subscriber) error) int {
	h.mu.RLock()
	live := make([]Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		live = append(live, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range live {
		if err := fn(sub); err != nil {
			h.observer.DeliveryFailed()
			if h.Unregister(sub) {
				h.logger.Warn("Dropping subscriber after delivery failure", zap.String("id", sub.ID()), zap.Error(err))
			}
			continue
		}
		delivered++
	}
	return delivered
}

// Broadcast pushes rec to every live subscriber.
func (h *Hub) Broadcast(rec models.PriceRecord) int {
	return h.ForEachLive(func(sub Subscriber) error {
		return sub.Push(rec)
	})
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Shutdown unregisters and closes every subscriber.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	live := make([]Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		live = append(live, sub)
	}
	h.mu.RUnlock()

	for _, sub := range live {
		h.Unregister(sub)
	}
}
