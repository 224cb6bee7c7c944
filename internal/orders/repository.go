package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/strikerzone/checkout/internal/catalog"
	"github.com/strikerzone/checkout/internal/domain"
	"github.com/strikerzone/checkout/internal/inventory"
)

type Repository struct {
	db      *sql.DB
	catalog catalog.ProductSource
	guard   *inventory.Guard
}

func NewRepository(db *sql.DB, source catalog.ProductSource, guard *inventory.Guard) *Repository {
	return &Repository{db: db, catalog: source, guard: guard}
}

// ResolveProducts fetches every product referenced by the input. A missing
// product aborts the whole lookup.
func (r *Repository) ResolveProducts(ctx context.Context, items []CreateItem) (map[string]*domain.Product, error) {
	products := make(map[string]*domain.Product, len(items))
	for _, item := range items {
		if _, ok := products[item.ProductID]; ok {
			continue
		}
		product, err := r.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			if err == domain.ErrNotFound {
				return nil, fmt.Errorf("product %s: %w", item.ProductID, domain.ErrNotFound)
			}
			return nil, err
		}
		products[item.ProductID] = product
	}
	return products, nil
}

// Create places an order: price snapshot, stock reservation, and row inserts
// all commit or roll back together.
func (r *Repository) Create(ctx context.Context, in CreateInput) (*domain.Order, error) {
	products, err := r.ResolveProducts(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	order, err := PriceOrder(in, products)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.CreateTx(ctx, tx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return order, nil
}

// CreateTx inserts a priced order and reserves its stock inside an existing
// transaction. The payment ledger uses this to materialize draft orders in
// the same transaction that settles the payment.
func (r *Repository) CreateTx(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	for _, item := range order.Items {
		if err := r.guard.Decrement(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}

	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, order_number, status, payment_method, payment_status,
			subtotal, shipping_cost, discount_amount, total,
			shipping_address, notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`, order.ID, order.UserID, order.OrderNumber, order.Status, order.PaymentMethod,
		order.PaymentState, order.Subtotal, order.ShippingCost, order.DiscountAmount,
		order.Total, address, order.Notes, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price, size, color)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, order.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Size, item.Color)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}
	var address []byte
	var notes, adminNotes, paymentRef, trackingNumber sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, order_number, status, payment_method, payment_status,
		       subtotal, shipping_cost, discount_amount, total,
		       shipping_address, notes, admin_notes, payment_ref, tracking_number,
		       created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.OrderNumber, &order.Status,
		&order.PaymentMethod, &order.PaymentState, &order.Subtotal, &order.ShippingCost,
		&order.DiscountAmount, &order.Total, &address, &notes, &adminNotes,
		&paymentRef, &trackingNumber, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return nil, err
	}
	order.Notes = notes.String
	order.AdminNotes = adminNotes.String
	order.PaymentRef = paymentRef.String
	order.TrackingNumber = trackingNumber.String

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price, COALESCE(size, ''), COALESCE(color, '')
		FROM order_items
		WHERE order_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.Size, &item.Color); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

// Filter narrows List. Zero values mean "no constraint"; handlers force
// UserID for non-admin callers.
type Filter struct {
	UserID        string
	Status        domain.OrderStatus
	PaymentMethod domain.PaymentMethod
}

func (r *Repository) List(ctx context.Context, f Filter) ([]domain.Order, error) {
	query := `
		SELECT id, user_id, order_number, status, payment_method, payment_status,
		       subtotal, shipping_cost, discount_amount, total,
		       shipping_address, notes, admin_notes, payment_ref, tracking_number,
		       created_at, updated_at
		FROM orders
		WHERE 1=1`
	var args []any
	if f.UserID != "" {
		args = append(args, f.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.PaymentMethod != "" {
		args = append(args, f.PaymentMethod)
		query += fmt.Sprintf(" AND payment_method = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		var address []byte
		var notes, adminNotes, paymentRef, trackingNumber sql.NullString
		if err := rows.Scan(&order.ID, &order.UserID, &order.OrderNumber, &order.Status,
			&order.PaymentMethod, &order.PaymentState, &order.Subtotal, &order.ShippingCost,
			&order.DiscountAmount, &order.Total, &address, &notes, &adminNotes,
			&paymentRef, &trackingNumber, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
			return nil, err
		}
		order.Notes = notes.String
		order.AdminNotes = adminNotes.String
		order.PaymentRef = paymentRef.String
		order.TrackingNumber = trackingNumber.String
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, id, product_id, product_name, quantity, unit_price, COALESCE(size, ''), COALESCE(color, '')
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.Size, &item.Color); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// UpdateStatus applies an admin status change after checking the transition
// table; the row is locked so a concurrent reconciliation cannot interleave.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, adminNotes, trackingNumber string) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.OrderStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id,
	).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if !domain.CanTransition(current, status) {
		return nil, fmt.Errorf("cannot move order from %s to %s: %w", current, status, domain.ErrInvalidState)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    admin_notes = COALESCE(NULLIF($3, ''), admin_notes),
		    tracking_number = COALESCE(NULLIF($4, ''), tracking_number),
		    updated_at = $5
		WHERE id = $1
	`, id, status, adminNotes, trackingNumber, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

// Delete removes an order with its items and payments. Admins may delete
// anything; an owner only while the order is still unpaid.
func (r *Repository) Delete(ctx context.Context, id, requesterID string, requesterIsAdmin bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var ownerID string
	var paymentState domain.PaymentState
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, payment_status FROM orders WHERE id = $1 FOR UPDATE`, id,
	).Scan(&ownerID, &paymentState)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		return err
	}

	if !requesterIsAdmin {
		if ownerID != requesterID {
			return domain.ErrForbidden
		}
		if paymentState != domain.PaymentStatePending {
			return fmt.Errorf("order has payment status %s: %w", paymentState, domain.ErrInvalidState)
		}
	}

	// order_items and payments go with the order via FK cascade.
	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		return err
	}

	return tx.Commit()
}
