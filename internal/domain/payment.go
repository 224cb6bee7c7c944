package domain

import (
	"encoding/json"
	"time"
)

type PaymentMethod string

const (
	MethodCOD     PaymentMethod = "cod"
	MethodFastPay PaymentMethod = "fastpay"
	MethodPayMint PaymentMethod = "paymint"
)

func ValidMethod(m PaymentMethod) bool {
	switch m {
	case MethodCOD, MethodFastPay, MethodPayMint:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusSuccess  PaymentStatus = "success"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// IsTerminal reports whether a payment can no longer change outcome through
// reconciliation. Refunds are a separate, explicitly administered move.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// OrderDraft is a not-yet-materialized order carried in payment metadata.
// Quantities and options are trusted; prices are re-resolved against the
// catalog when the order is created.
type OrderDraft struct {
	Items []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
		Size      string `json:"size,omitempty"`
		Color     string `json:"color,omitempty"`
	} `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	ShippingCost    int64           `json:"shipping_cost"`
	DiscountAmount  int64           `json:"discount_amount"`
	Notes           string          `json:"notes,omitempty"`
}

type Payment struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id,omitempty"`
	UserID          string          `json:"user_id"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Method          PaymentMethod   `json:"method"`
	Status          PaymentStatus   `json:"status"`
	ProviderRef     string          `json:"provider_ref,omitempty"`
	ProviderPayload json.RawMessage `json:"provider_payload,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	InitiatedAt     time.Time       `json:"initiated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	FailedAt        *time.Time      `json:"failed_at,omitempty"`
}
