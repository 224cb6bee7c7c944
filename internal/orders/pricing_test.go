package orders

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/strikerzone/checkout/internal/domain"
)

func catalogFixture() map[string]*domain.Product {
	return map[string]*domain.Product{
		"prod-tee":    {ID: "prod-tee", Name: "Crew Tee", Price: 500, Stock: 10},
		"prod-hoodie": {ID: "prod-hoodie", Name: "Zip Hoodie", Price: 400, SalePrice: 300, Stock: 5},
	}
}

func TestPriceOrder(t *testing.T) {
	in := CreateInput{
		UserID: "user-1",
		Items: []CreateItem{
			{ProductID: "prod-tee", Quantity: 1},
			{ProductID: "prod-hoodie", Quantity: 2, Size: "L"},
		},
		PaymentMethod: domain.MethodCOD,
		ShippingCost:  100,
	}

	order, err := PriceOrder(in, catalogFixture())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 500 + 2x300 sale price, plus shipping.
	if order.Subtotal != 1100 {
		t.Errorf("expected subtotal 1100, got %d", order.Subtotal)
	}
	if order.Total != 1200 {
		t.Errorf("expected total 1200, got %d", order.Total)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected pending status, got %s", order.Status)
	}
	if order.PaymentState != domain.PaymentStatePending {
		t.Errorf("expected pending payment state, got %s", order.PaymentState)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	if order.Items[1].UnitPrice != 300 {
		t.Errorf("sale price not snapshotted: %d", order.Items[1].UnitPrice)
	}
	if order.Items[1].ProductName != "Zip Hoodie" {
		t.Errorf("product name not snapshotted: %s", order.Items[1].ProductName)
	}
}

func TestPriceOrder_Rejections(t *testing.T) {
	base := func() CreateInput {
		return CreateInput{
			UserID:        "user-1",
			Items:         []CreateItem{{ProductID: "prod-tee", Quantity: 1}},
			PaymentMethod: domain.MethodFastPay,
		}
	}

	tests := []struct {
		name     string
		mutate   func(*CreateInput)
		expected error
	}{
		{
			name:     "empty items",
			mutate:   func(in *CreateInput) { in.Items = nil },
			expected: domain.ErrInvalidState,
		},
		{
			name:     "zero quantity",
			mutate:   func(in *CreateInput) { in.Items[0].Quantity = 0 },
			expected: domain.ErrInvalidState,
		},
		{
			name:     "quantity above cap",
			mutate:   func(in *CreateInput) { in.Items[0].Quantity = maxLineQuantity + 1 },
			expected: domain.ErrInvalidState,
		},
		{
			name:     "negative discount",
			mutate:   func(in *CreateInput) { in.DiscountAmount = -1 },
			expected: domain.ErrInvalidState,
		},
		{
			name:     "unknown payment method",
			mutate:   func(in *CreateInput) { in.PaymentMethod = "barter" },
			expected: domain.ErrInvalidState,
		},
		{
			name:     "unknown product",
			mutate:   func(in *CreateInput) { in.Items[0].ProductID = "prod-missing" },
			expected: domain.ErrNotFound,
		},
		{
			name:     "discount exceeds total",
			mutate:   func(in *CreateInput) { in.DiscountAmount = 10000 },
			expected: domain.ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base()
			tt.mutate(&in)

			_, err := PriceOrder(in, catalogFixture())
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestNewOrderNumber(t *testing.T) {
	number := newOrderNumber(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	if !strings.HasPrefix(number, "SZ-20260314-") {
		t.Errorf("unexpected prefix: %s", number)
	}
	if len(number) != len("SZ-20260314-")+8 {
		t.Errorf("unexpected length: %s", number)
	}
	if number == newOrderNumber(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)) {
		t.Error("order numbers must not collide")
	}
}
