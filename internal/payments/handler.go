package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/strikerzone/checkout/internal/auth"
	"github.com/strikerzone/checkout/internal/domain"
	"github.com/strikerzone/checkout/internal/gateway"
	"github.com/strikerzone/checkout/internal/orders"
	"github.com/strikerzone/checkout/internal/reconcile"
)

// maxCallbackBody caps provider callback payloads; real provider notifications
// are a few hundred bytes.
const maxCallbackBody = 64 << 10

type Handler struct {
	repo       *Repository
	orders     *orders.Repository
	reconciler *reconcile.Reconciler
	adapters   map[domain.PaymentMethod]gateway.Adapter
	currency   string
	returnURL  string
	logger     *slog.Logger
}

func NewHandler(repo *Repository, orderRepo *orders.Repository, reconciler *reconcile.Reconciler,
	adapters []gateway.Adapter, currency, returnURL string, logger *slog.Logger) *Handler {
	byMethod := make(map[domain.PaymentMethod]gateway.Adapter, len(adapters))
	for _, a := range adapters {
		byMethod[a.Method()] = a
	}
	return &Handler{
		repo:       repo,
		orders:     orderRepo,
		reconciler: reconciler,
		adapters:   byMethod,
		currency:   currency,
		returnURL:  returnURL,
		logger:     logger,
	}
}

type initiateRequest struct {
	OrderID   string               `json:"order_id,omitempty"`
	Method    domain.PaymentMethod `json:"method,omitempty"`
	Draft     *domain.OrderDraft   `json:"draft,omitempty"`
	ReturnURL string               `json:"return_url,omitempty"`
}

type initiateResponse struct {
	Payment     *domain.Payment `json:"payment"`
	RedirectURL string          `json:"redirect_url,omitempty"`
}

// HandleInitiate opens a payment either against an existing order or against
// a draft that will only become an order once the payment settles. The second
// path means an abandoned wallet checkout leaves no half-paid order behind.
func (h *Handler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payment := &domain.Payment{
		ID:          uuid.New().String(),
		UserID:      identity.UserID,
		Currency:    h.currency,
		Status:      domain.PaymentStatusPending,
		InitiatedAt: time.Now().UTC(),
	}

	switch {
	case req.OrderID != "":
		order, err := h.orders.GetByID(r.Context(), req.OrderID)
		if err != nil {
			h.writeDomainError(w, err, "failed to load order for payment", "order_id", req.OrderID)
			return
		}
		if !identity.IsAdmin && order.UserID != identity.UserID {
			h.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		if order.PaymentState == domain.PaymentStatePaid || order.PaymentState == domain.PaymentStateRefunded {
			h.writeError(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("order already has payment status %s", order.PaymentState))
			return
		}
		payment.OrderID = order.ID
		payment.Amount = order.Total
		payment.Method = order.PaymentMethod
		if req.Method != "" {
			payment.Method = req.Method
		}
	case req.Draft != nil:
		amount, err := h.priceDraft(r, req.Draft, req.Method)
		if err != nil {
			h.writeDomainError(w, err, "failed to price payment draft", "user_id", identity.UserID)
			return
		}
		metadata, err := json.Marshal(req.Draft)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid draft")
			return
		}
		payment.Amount = amount
		payment.Method = req.Method
		payment.Metadata = metadata
	default:
		h.writeError(w, http.StatusBadRequest, "either order_id or draft is required")
		return
	}

	adapter, ok := h.adapters[payment.Method]
	if !ok {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown payment method %q", payment.Method))
		return
	}

	if err := h.repo.Create(r.Context(), payment); err != nil {
		h.logger.Error("failed to record payment", "error", err, "payment_id", payment.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	returnURL := h.returnURL
	if req.ReturnURL != "" {
		returnURL = req.ReturnURL
	}

	initiation, err := adapter.Initiate(r.Context(), payment, returnURL)
	if err != nil {
		// The provider never saw this payment, so nothing can settle it later.
		if _, markErr := h.repo.MarkFailed(r.Context(), payment.ID, nil); markErr != nil {
			h.logger.Error("failed to mark payment failed after initiation error",
				"error", markErr, "payment_id", payment.ID)
		}
		h.writeDomainError(w, err, "gateway initiation failed",
			"payment_id", payment.ID, "method", payment.Method)
		return
	}

	if err := h.repo.SetProviderRef(r.Context(), payment.ID, initiation.ProviderRef, initiation.Payload); err != nil {
		h.logger.Error("failed to store provider ref", "error", err,
			"payment_id", payment.ID, "provider_ref", initiation.ProviderRef)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	payment.ProviderRef = initiation.ProviderRef

	h.logger.Info("payment initiated",
		"payment_id", payment.ID, "method", payment.Method,
		"amount", payment.Amount, "provider_ref", payment.ProviderRef)
	h.writeJSON(w, http.StatusCreated, initiateResponse{
		Payment:     payment,
		RedirectURL: initiation.RedirectURL,
	})
}

func (h *Handler) priceDraft(r *http.Request, draft *domain.OrderDraft, method domain.PaymentMethod) (int64, error) {
	in := orders.CreateInput{
		UserID:          auth.FromContext(r.Context()).UserID,
		ShippingAddress: draft.ShippingAddress,
		PaymentMethod:   method,
		ShippingCost:    draft.ShippingCost,
		DiscountAmount:  draft.DiscountAmount,
		Notes:           draft.Notes,
	}
	for _, item := range draft.Items {
		in.Items = append(in.Items, orders.CreateItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
		})
	}

	products, err := h.orders.ResolveProducts(r.Context(), in.Items)
	if err != nil {
		return 0, err
	}
	order, err := orders.PriceOrder(in, products)
	if err != nil {
		return 0, err
	}
	return order.Total, nil
}

// HandleVerify re-checks a pending payment against its provider. Buyers land
// here after the wallet redirect; the frontend may also poll it.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		h.writeError(w, http.StatusBadRequest, "missing ref")
		return
	}

	payment, err := h.reconciler.Lookup(r.Context(), ref)
	if err != nil {
		h.writeDomainError(w, err, "failed to look up payment", "provider_ref", ref)
		return
	}
	if !identity.IsAdmin && payment.UserID != identity.UserID {
		h.writeError(w, http.StatusNotFound, "payment not found")
		return
	}

	payment, err = h.reconciler.Reconcile(r.Context(), ref)
	if err != nil {
		h.writeDomainError(w, err, "failed to reconcile payment", "provider_ref", ref)
		return
	}

	h.writeJSON(w, http.StatusOK, payment)
}

// HandleCallback receives provider server-to-server notifications. The route
// is unauthenticated; the body is only mined for a provider ref and the
// verdict always comes from a direct verify call to the provider.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	provider := domain.PaymentMethod(r.PathValue("provider"))
	adapter, ok := h.adapters[provider]
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown provider")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	ref, err := adapter.ParseCallback(body)
	if err != nil {
		h.logger.Warn("unparsable provider callback", "provider", provider, "error", err)
		h.writeError(w, http.StatusBadRequest, "unparsable callback")
		return
	}

	payment, err := h.reconciler.Reconcile(r.Context(), ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.logger.Warn("callback for unknown payment", "provider", provider, "provider_ref", ref)
			h.writeError(w, http.StatusNotFound, "unknown payment")
			return
		}
		// Settlement stays pending; the provider will retry and the buyer's
		// verify poll covers the gap.
		h.logger.Error("failed to reconcile callback", "error", err,
			"provider", provider, "provider_ref", ref)
		h.writeError(w, http.StatusBadGateway, "reconciliation failed")
		return
	}

	h.logger.Info("provider callback processed",
		"provider", provider, "provider_ref", ref, "status", payment.Status)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(payment.Status)})
}

// HandleConfirmCOD lets an admin settle a cash-on-delivery payment after the
// courier collects.
func (h *Handler) HandleConfirmCOD(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if !identity.IsAdmin {
		h.writeError(w, http.StatusForbidden, "admin access required")
		return
	}

	id := r.PathValue("id")
	payment, err := h.reconciler.ConfirmCOD(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err, "failed to confirm cod payment", "payment_id", id)
		return
	}

	h.logger.Info("cod payment confirmed", "payment_id", payment.ID, "order_id", payment.OrderID)
	h.writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if !identity.IsAdmin {
		h.writeError(w, http.StatusForbidden, "admin access required")
		return
	}

	id := r.PathValue("id")
	payment, err := h.reconciler.Refund(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err, "failed to refund payment", "payment_id", id)
		return
	}

	h.logger.Info("payment refunded", "payment_id", payment.ID, "order_id", payment.OrderID)
	h.writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	id := r.PathValue("id")

	payment, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err, "failed to get payment", "payment_id", id)
		return
	}

	if !identity.IsAdmin && payment.UserID != identity.UserID {
		h.writeError(w, http.StatusNotFound, "payment not found")
		return
	}

	h.writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	userID := identity.UserID
	if identity.IsAdmin {
		if requested := r.URL.Query().Get("user_id"); requested != "" {
			userID = requested
		}
	}

	payments, err := h.repo.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err, "failed to list payments", "user_id", userID)
		return
	}

	h.writeJSON(w, http.StatusOK, payments)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, msg string, args ...any) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInsufficientStock):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, domain.ErrInvalidState):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrGatewayRejected):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrGatewayUnavailable):
		h.writeError(w, http.StatusBadGateway, "payment provider unavailable")
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
