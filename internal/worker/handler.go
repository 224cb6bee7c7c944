package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/strikerzone/checkout/internal/domain"
)

// NotificationHandler turns checkout events into customer emails through the
// external email service. It handles both order and payment topics; events
// it has no template for are acknowledged and skipped.
type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal checkout event: %w", err)
	}

	subject, body, ok := h.compose(event)
	if !ok {
		h.logger.Debug("no email template for event",
			"type", event.Type, "status", event.Status)
		return nil
	}

	if err := h.sendEmail(ctx, event.UserID, subject, body); err != nil {
		h.logger.Error("failed to send email", "error", err,
			"type", event.Type, "order_id", event.OrderID)
		return fmt.Errorf("send %s email: %w", event.Type, err)
	}

	h.logger.Info("notification email sent",
		"type", event.Type, "order_id", event.OrderID, "user_id", event.UserID)
	return nil
}

func (h *NotificationHandler) compose(event domain.Event) (subject, body string, ok bool) {
	switch event.Type {
	case domain.EventOrderCreated:
		return fmt.Sprintf("We received your order %s", event.OrderID),
			fmt.Sprintf("Thanks for your order. We will let you know as soon as it ships. Order total: %d.", event.Amount),
			true
	case domain.EventOrderUpdated:
		switch domain.OrderStatus(event.Status) {
		case domain.OrderStatusShipped:
			return fmt.Sprintf("Your order %s is on its way", event.OrderID),
				"Your order has shipped.", true
		case domain.OrderStatusDelivered:
			return fmt.Sprintf("Your order %s was delivered", event.OrderID),
				"Your order has been delivered. Enjoy!", true
		case domain.OrderStatusCancelled:
			return fmt.Sprintf("Your order %s was cancelled", event.OrderID),
				"Your order has been cancelled.", true
		}
		return "", "", false
	case domain.EventPaymentUpdated:
		switch domain.PaymentStatus(event.Status) {
		case domain.PaymentStatusSuccess:
			return fmt.Sprintf("Payment received for order %s", event.OrderID),
				fmt.Sprintf("We received your payment of %d. Your order is confirmed.", event.Amount),
				true
		case domain.PaymentStatusFailed:
			return fmt.Sprintf("Payment failed for order %s", event.OrderID),
				"Your payment did not go through. Please try again with another method.",
				true
		case domain.PaymentStatusRefunded:
			return fmt.Sprintf("Refund issued for order %s", event.OrderID),
				fmt.Sprintf("A refund of %d has been issued to your payment method.", event.Amount),
				true
		}
		return "", "", false
	}
	return "", "", false
}

func (h *NotificationHandler) sendEmail(ctx context.Context, userID, subject, body string) error {
	payload := map[string]string{
		"to":      userID,
		"subject": subject,
		"body":    body,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call email service: %w", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}
	return nil
}
