package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/strikerzone/checkout/internal/auth"
)

// OwnershipFunc reports whether a user owns an order; the SSE handler uses
// it to authorize order-room subscriptions.
type OwnershipFunc func(ctx context.Context, orderID, userID string) (bool, error)

// SSEHandler streams hub events to the browser over server-sent events.
type SSEHandler struct {
	hub    *Hub
	owns   OwnershipFunc
	logger *slog.Logger
}

func NewSSEHandler(hub *Hub, owns OwnershipFunc, logger *slog.Logger) *SSEHandler {
	return &SSEHandler{hub: hub, owns: owns, logger: logger}
}

// HandleEvents subscribes the caller to its own room, the admin room when
// the caller is an admin, and optionally an order room via ?order_id= if
// the caller is the order's owner or an admin.
func (h *SSEHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := auth.FromContext(r.Context())

	rooms := []string{RoomUser(id.UserID)}
	if id.IsAdmin {
		rooms = append(rooms, RoomAdmin)
	}
	if orderID := r.URL.Query().Get("order_id"); orderID != "" {
		allowed := id.IsAdmin
		if !allowed && h.owns != nil {
			owned, err := h.owns(r.Context(), orderID, id.UserID)
			if err != nil {
				h.logger.Error("order ownership check failed", "error", err, "order_id", orderID)
			}
			allowed = owned
		}
		if !allowed {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		rooms = append(rooms, RoomOrder(orderID))
	}

	events, cancel := h.hub.Subscribe(rooms...)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info("event stream opened", "user_id", id.UserID, "rooms", len(rooms))

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to encode event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
