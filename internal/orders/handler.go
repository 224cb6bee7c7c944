package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/strikerzone/checkout/internal/auth"
	"github.com/strikerzone/checkout/internal/domain"
	"github.com/strikerzone/checkout/internal/notify"
)

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Handler struct {
	repo     *Repository
	hub      *notify.Hub
	producer Publisher
	logger   *slog.Logger
}

func NewHandler(repo *Repository, hub *notify.Hub, producer Publisher, logger *slog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		hub:      hub,
		producer: producer,
		logger:   logger,
	}
}

type createItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

type createOrderRequest struct {
	Items           []createItemRequest    `json:"items"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
	PaymentMethod   domain.PaymentMethod   `json:"payment_method"`
	ShippingCost    int64                  `json:"shipping_cost"`
	DiscountAmount  int64                  `json:"discount_amount"`
	Notes           string                 `json:"notes,omitempty"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := CreateInput{
		UserID:          identity.UserID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ShippingCost:    req.ShippingCost,
		DiscountAmount:  req.DiscountAmount,
		Notes:           req.Notes,
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, CreateItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
		})
	}

	order, err := h.repo.Create(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, err, "failed to create order", "user_id", identity.UserID)
		return
	}

	h.announce(r.Context(), domain.EventOrderCreated, order)

	h.logger.Info("order created",
		"order_id", order.ID, "order_number", order.OrderNumber,
		"user_id", order.UserID, "total", order.Total)
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err, "failed to get order", "id", id)
		return
	}

	if !identity.IsAdmin && order.UserID != identity.UserID {
		// Hide other users' orders entirely rather than confirming they exist.
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	f := Filter{
		Status:        domain.OrderStatus(r.URL.Query().Get("status")),
		PaymentMethod: domain.PaymentMethod(r.URL.Query().Get("payment_method")),
	}
	if identity.IsAdmin {
		f.UserID = r.URL.Query().Get("user_id")
	} else {
		f.UserID = identity.UserID
	}

	orders, err := h.repo.List(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, err, "failed to list orders", "user_id", f.UserID)
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status         domain.OrderStatus `json:"status"`
	AdminNotes     string             `json:"admin_notes,omitempty"`
	TrackingNumber string             `json:"tracking_number,omitempty"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if !identity.IsAdmin {
		h.writeError(w, http.StatusForbidden, "admin access required")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.repo.UpdateStatus(r.Context(), id, req.Status, req.AdminNotes, req.TrackingNumber)
	if err != nil {
		h.writeDomainError(w, err, "failed to update order status", "id", id, "status", req.Status)
		return
	}

	h.announce(r.Context(), domain.EventOrderUpdated, order)

	h.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	if err := h.repo.Delete(r.Context(), id, identity.UserID, identity.IsAdmin); err != nil {
		h.writeDomainError(w, err, "failed to delete order", "id", id)
		return
	}

	h.logger.Info("order deleted", "order_id", id, "requester", identity.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) announce(ctx context.Context, eventType string, order *domain.Order) {
	event := domain.Event{
		Type:      eventType,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Status:    string(order.Status),
		Amount:    order.Total,
		Timestamp: time.Now().UTC(),
	}

	if h.hub != nil {
		h.hub.Broadcast(event)
	}
	if h.producer != nil {
		if err := h.producer.Publish(ctx, order.ID, event); err != nil {
			h.logger.Error("failed to publish order event", "error", err, "order_id", order.ID)
		}
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, msg string, args ...any) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrInsufficientStock):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, domain.ErrInvalidState):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error(msg, append([]any{"error", err}, args...)...)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
