package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/strikerzone/checkout/internal/domain"
	"github.com/strikerzone/checkout/internal/gateway"
	"github.com/strikerzone/checkout/internal/notify"
)

// Ledger is the slice of the payment store the reconciler drives.
type Ledger interface {
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	GetByProviderRef(ctx context.Context, providerRef string) (*domain.Payment, error)
	MarkSucceeded(ctx context.Context, id string, payload json.RawMessage) (*domain.Payment, error)
	MarkFailed(ctx context.Context, id string, payload json.RawMessage) (*domain.Payment, error)
	MarkRefunded(ctx context.Context, id string) (*domain.Payment, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Reconciler settles pending payments against the provider's view. Provider
// callbacks are treated as hints only: every settlement re-verifies with the
// gateway before writing, so a forged or replayed callback cannot flip a
// payment.
type Reconciler struct {
	ledger   Ledger
	adapters map[domain.PaymentMethod]gateway.Adapter
	hub      *notify.Hub
	producer Publisher
	logger   *slog.Logger
}

func New(ledger Ledger, adapters []gateway.Adapter, hub *notify.Hub, producer Publisher, logger *slog.Logger) *Reconciler {
	byMethod := make(map[domain.PaymentMethod]gateway.Adapter, len(adapters))
	for _, a := range adapters {
		byMethod[a.Method()] = a
	}
	return &Reconciler{
		ledger:   ledger,
		adapters: byMethod,
		hub:      hub,
		producer: producer,
		logger:   logger,
	}
}

// Lookup resolves a provider ref to its payment without contacting the
// gateway. Callers use it to authorize a verify request before reconciling.
func (r *Reconciler) Lookup(ctx context.Context, providerRef string) (*domain.Payment, error) {
	return r.ledger.GetByProviderRef(ctx, providerRef)
}

// Reconcile resolves the payment behind a provider ref. Terminal payments
// are returned as-is, so redelivered callbacks and repeated verify polls
// are no-ops. A gateway error leaves the payment pending for a later pass.
func (r *Reconciler) Reconcile(ctx context.Context, providerRef string) (*domain.Payment, error) {
	payment, err := r.ledger.GetByProviderRef(ctx, providerRef)
	if err != nil {
		return nil, err
	}
	if payment.Status.IsTerminal() {
		return payment, nil
	}

	adapter, ok := r.adapters[payment.Method]
	if !ok {
		return nil, fmt.Errorf("no gateway adapter for method %s: %w", payment.Method, domain.ErrInvalidState)
	}

	result, err := adapter.Verify(ctx, providerRef)
	if err != nil {
		return nil, fmt.Errorf("verify %s with %s: %w", providerRef, payment.Method, err)
	}

	switch result.Outcome {
	case gateway.OutcomeCompleted:
		updated, err := r.ledger.MarkSucceeded(ctx, payment.ID, result.Payload)
		if err != nil {
			return nil, err
		}
		r.announce(ctx, updated)
		return updated, nil
	case gateway.OutcomeFailed:
		updated, err := r.ledger.MarkFailed(ctx, payment.ID, result.Payload)
		if err != nil {
			return nil, err
		}
		r.announce(ctx, updated)
		return updated, nil
	default:
		return payment, nil
	}
}

// ConfirmCOD settles a cash-on-delivery payment on an admin's word. There is
// no provider to verify against; the courier's cash is the confirmation.
func (r *Reconciler) ConfirmCOD(ctx context.Context, paymentID string) (*domain.Payment, error) {
	payment, err := r.ledger.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Method != domain.MethodCOD {
		return nil, fmt.Errorf("payment %s uses %s, not cash on delivery: %w",
			paymentID, payment.Method, domain.ErrInvalidState)
	}
	if payment.Status.IsTerminal() {
		return payment, nil
	}

	updated, err := r.ledger.MarkSucceeded(ctx, payment.ID, nil)
	if err != nil {
		return nil, err
	}
	r.announce(ctx, updated)
	return updated, nil
}

// Refund moves a successful payment to refunded.
func (r *Reconciler) Refund(ctx context.Context, paymentID string) (*domain.Payment, error) {
	updated, err := r.ledger.MarkRefunded(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	r.announce(ctx, updated)
	return updated, nil
}

// announce fans the settlement out to live subscribers and the event bus.
// Settlement already committed; delivery failures are logged, not returned.
func (r *Reconciler) announce(ctx context.Context, payment *domain.Payment) {
	event := domain.Event{
		Type:      domain.EventPaymentUpdated,
		OrderID:   payment.OrderID,
		UserID:    payment.UserID,
		PaymentID: payment.ID,
		Status:    string(payment.Status),
		Amount:    payment.Amount,
		Timestamp: time.Now().UTC(),
	}

	if r.hub != nil {
		r.hub.Broadcast(event)
	}
	if r.producer != nil {
		key := payment.OrderID
		if key == "" {
			key = payment.ID
		}
		if err := r.producer.Publish(ctx, key, event); err != nil {
			r.logger.Error("failed to publish payment event",
				"payment_id", payment.ID, "error", err)
		}
	}
}
