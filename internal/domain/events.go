package domain

import "time"

const (
	EventOrderCreated   = "order.created"
	EventOrderUpdated   = "order.updated"
	EventPaymentUpdated = "payment.updated"
)

// Event is what the notifier pushes to connected clients and what gets
// published on the bus. Delivery to clients is best-effort; the rows in
// postgres stay the system of record.
type Event struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	PaymentID string    `json:"payment_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
