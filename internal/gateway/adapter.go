package gateway

import (
	"context"
	"encoding/json"

	"github.com/strikerzone/checkout/internal/domain"
)

// Outcome is the normalized result of a server-to-server lookup. Transient
// transport errors never map to OutcomeFailed: not reaching the provider is
// not evidence the customer didn't pay.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"
)

// Initiation is what a provider hands back when a charge is opened. COD has
// no redirect; the wallets send the customer to RedirectURL and back.
type Initiation struct {
	ProviderRef string
	RedirectURL string
	Payload     json.RawMessage
}

// Result carries the verified outcome plus the raw provider response for
// the payment ledger's audit column.
type Result struct {
	Outcome Outcome
	Payload json.RawMessage
}

// Adapter is the per-provider contract. Callback payloads are untrusted:
// ParseCallback only extracts the provider's correlation id, and every state
// change goes through Verify first. Verify must be safe to call any number
// of times.
type Adapter interface {
	Method() domain.PaymentMethod
	Initiate(ctx context.Context, payment *domain.Payment, returnURL string) (*Initiation, error)
	Verify(ctx context.Context, providerRef string) (*Result, error)
	ParseCallback(body []byte) (providerRef string, err error)
}
