package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strikerzone/checkout/internal/domain"
)

// maxLineQuantity bounds a single line item. Stock enforcement happens at
// reservation time; this cap keeps price arithmetic in range before that.
const maxLineQuantity = 100

type CreateItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

type CreateInput struct {
	UserID          string
	Items           []CreateItem
	ShippingAddress domain.ShippingAddress
	PaymentMethod   domain.PaymentMethod
	ShippingCost    int64
	DiscountAmount  int64
	Notes           string
}

// PriceOrder builds an order from the request and the resolved products,
// snapshotting the effective price of every line item. The catalog is the
// source of truth for prices; client-supplied amounts are never trusted.
func PriceOrder(in CreateInput, products map[string]*domain.Product) (*domain.Order, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("order must contain at least one item: %w", domain.ErrInvalidState)
	}
	if in.ShippingCost < 0 || in.DiscountAmount < 0 {
		return nil, fmt.Errorf("negative shipping or discount: %w", domain.ErrInvalidState)
	}
	if !domain.ValidMethod(in.PaymentMethod) {
		return nil, fmt.Errorf("unknown payment method %q: %w", in.PaymentMethod, domain.ErrInvalidState)
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:              uuid.New().String(),
		UserID:          in.UserID,
		OrderNumber:     newOrderNumber(now),
		ShippingAddress: in.ShippingAddress,
		ShippingCost:    in.ShippingCost,
		DiscountAmount:  in.DiscountAmount,
		Notes:           in.Notes,
		Status:          domain.OrderStatusPending,
		PaymentMethod:   in.PaymentMethod,
		PaymentState:    domain.PaymentStatePending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var subtotal int64
	for _, item := range in.Items {
		if item.Quantity < 1 || item.Quantity > maxLineQuantity {
			return nil, fmt.Errorf("quantity for product %s must be between 1 and %d: %w",
				item.ProductID, maxLineQuantity, domain.ErrInvalidState)
		}
		product, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, domain.ErrNotFound)
		}

		unitPrice := product.EffectivePrice()
		subtotal += unitPrice * int64(item.Quantity)

		order.Items = append(order.Items, domain.OrderItem{
			ID:          uuid.New().String(),
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   unitPrice,
			Size:        item.Size,
			Color:       item.Color,
		})
	}

	order.Subtotal = subtotal
	order.Total = subtotal + order.ShippingCost - order.DiscountAmount
	if order.Total < 0 {
		return nil, fmt.Errorf("discount exceeds order value: %w", domain.ErrInvalidState)
	}

	return order, nil
}

func newOrderNumber(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("SZ-%s-%s", t.Format("20060102"), suffix)
}
