package gateway

import (
	"context"
	"errors"

	"github.com/strikerzone/checkout/internal/domain"
)

// COD is cash on delivery. There is no external provider: initiation leaves
// the payment pending collection, and Verify stays pending until an admin
// confirms the cash was collected (which goes through the ledger directly,
// not through a provider lookup).
type COD struct{}

func NewCOD() *COD {
	return &COD{}
}

func (c *COD) Method() domain.PaymentMethod {
	return domain.MethodCOD
}

func (c *COD) Initiate(_ context.Context, payment *domain.Payment, _ string) (*Initiation, error) {
	return &Initiation{
		ProviderRef: "cod-" + payment.ID,
	}, nil
}

func (c *COD) Verify(_ context.Context, _ string) (*Result, error) {
	return &Result{Outcome: OutcomePending}, nil
}

func (c *COD) ParseCallback(_ []byte) (string, error) {
	return "", errors.New("cash on delivery has no provider callbacks")
}
