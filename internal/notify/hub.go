package notify

import (
	"log/slog"
	"sync"

	"github.com/strikerzone/checkout/internal/domain"
)

// Room names. Every event lands in the admin room, the owning user's room,
// and the order-scoped room.
const (
	RoomAdmin = "admin"
)

func RoomUser(userID string) string   { return "user:" + userID }
func RoomOrder(orderID string) string { return "order:" + orderID }

const subscriberBuffer = 16

type subscriber struct {
	rooms map[string]bool
	ch    chan domain.Event
}

// Hub fans order and payment events out to connected clients. Delivery is
// best-effort and at-most-once: a subscriber whose buffer is full misses the
// event and is expected to re-fetch state on reconnect.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]bool
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[*subscriber]bool),
		logger: logger,
	}
}

// Subscribe registers a client for the given rooms. The returned cancel
// function must be called on disconnect.
func (h *Hub) Subscribe(rooms ...string) (<-chan domain.Event, func()) {
	sub := &subscriber{
		rooms: make(map[string]bool, len(rooms)),
		ch:    make(chan domain.Event, subscriberBuffer),
	}
	for _, room := range rooms {
		sub.rooms[room] = true
	}

	h.mu.Lock()
	h.subs[sub] = true
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if h.subs[sub] {
			delete(h.subs, sub)
			close(sub.ch)
		}
		h.mu.Unlock()
	}

	return sub.ch, cancel
}

// Publish delivers an event to every subscriber of a room without blocking.
func (h *Hub) Publish(room string, event domain.Event) {
	h.publish([]string{room}, event)
}

// Broadcast routes an event to the standard trio of rooms. A subscriber in
// more than one matching room still receives the event once.
func (h *Hub) Broadcast(event domain.Event) {
	rooms := []string{RoomAdmin}
	if event.UserID != "" {
		rooms = append(rooms, RoomUser(event.UserID))
	}
	if event.OrderID != "" {
		rooms = append(rooms, RoomOrder(event.OrderID))
	}
	h.publish(rooms, event)
}

func (h *Hub) publish(rooms []string, event domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		matched := false
		for _, room := range rooms {
			if sub.rooms[room] {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.logger.Debug("dropping event for slow subscriber", "type", event.Type)
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
