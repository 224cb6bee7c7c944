package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/strikerzone/checkout/internal/domain"
	"github.com/strikerzone/checkout/internal/orders"
)

// Repository is the payment ledger. Settlement writes that touch both the
// payment and its order run in a single transaction, including materializing
// a draft order for payment-first checkouts.
type Repository struct {
	db     *sql.DB
	orders *orders.Repository
}

func NewRepository(db *sql.DB, orderRepo *orders.Repository) *Repository {
	return &Repository{db: db, orders: orderRepo}
}

func (r *Repository) Create(ctx context.Context, payment *domain.Payment) error {
	var orderID any
	if payment.OrderID != "" {
		orderID = payment.OrderID
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, user_id, amount, currency, method, status, metadata, initiated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, payment.ID, orderID, payment.UserID, payment.Amount, payment.Currency,
		payment.Method, payment.Status, nullableJSON(payment.Metadata), payment.InitiatedAt)
	return err
}

// SetProviderRef records the gateway handle issued at initiation. The ref is
// unique across payments so provider callbacks resolve to exactly one row.
func (r *Repository) SetProviderRef(ctx context.Context, id, providerRef string, payload json.RawMessage) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments SET provider_ref = $2, provider_payload = $3 WHERE id = $1
	`, id, providerRef, nullableJSON(payload))
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, selectPayment+` WHERE id = $1`, id)
	return scanPayment(row)
}

func (r *Repository) GetByProviderRef(ctx context.Context, providerRef string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, selectPayment+` WHERE provider_ref = $1`, providerRef)
	return scanPayment(row)
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, selectPayment+` WHERE user_id = $1 ORDER BY initiated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	payments := []domain.Payment{}
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

// MarkSucceeded settles a payment as successful. In one transaction it
// flips the payment to success, materializes the draft order when the
// payment was taken before the order existed, and moves the order to
// paid/confirmed. A payment already in a terminal status is returned
// unchanged so repeated callbacks and verify polls stay no-ops.
func (r *Repository) MarkSucceeded(ctx context.Context, id string, payload json.RawMessage) (*domain.Payment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	payment, err := lockForSettlement(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status.IsTerminal() {
		return payment, nil
	}

	if payment.OrderID == "" {
		order, err := r.materializeOrder(ctx, tx, payment)
		if err != nil {
			return nil, err
		}
		payment.OrderID = order.ID
	}

	var alreadyPaid bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payments WHERE order_id = $1 AND status = $2 AND id <> $3
		)
	`, payment.OrderID, domain.PaymentStatusSuccess, payment.ID).Scan(&alreadyPaid)
	if err != nil {
		return nil, err
	}
	if alreadyPaid {
		return nil, fmt.Errorf("order %s already has a successful payment: %w",
			payment.OrderID, domain.ErrInvalidState)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, order_id = $3, completed_at = $4,
		    provider_payload = COALESCE($5, provider_payload)
		WHERE id = $1
	`, payment.ID, domain.PaymentStatusSuccess, payment.OrderID, now, nullableJSON(payload))
	if err != nil {
		// payments_one_success_per_order backstops the check above.
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("order %s already has a successful payment: %w",
				payment.OrderID, domain.ErrInvalidState)
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2,
		    status = CASE WHEN status = $3 THEN $4 ELSE status END,
		    payment_ref = $5,
		    updated_at = $6
		WHERE id = $1
	`, payment.OrderID, domain.PaymentStatePaid, domain.OrderStatusPending,
		domain.OrderStatusConfirmed, payment.ProviderRef, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	payment.Status = domain.PaymentStatusSuccess
	payment.CompletedAt = &now
	return payment, nil
}

// MarkFailed settles a payment as failed. The order, when one exists, keeps
// its items and status; only its payment state records the failure so the
// buyer can retry with another method.
func (r *Repository) MarkFailed(ctx context.Context, id string, payload json.RawMessage) (*domain.Payment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	payment, err := lockForSettlement(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status.IsTerminal() {
		return payment, nil
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, failed_at = $3,
		    provider_payload = COALESCE($4, provider_payload)
		WHERE id = $1
	`, payment.ID, domain.PaymentStatusFailed, now, nullableJSON(payload))
	if err != nil {
		return nil, err
	}

	if payment.OrderID != "" {
		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET payment_status = $2, updated_at = $3 WHERE id = $1
		`, payment.OrderID, domain.PaymentStateFailed, now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	payment.Status = domain.PaymentStatusFailed
	payment.FailedAt = &now
	return payment, nil
}

// MarkRefunded is an admin move available only from success.
func (r *Repository) MarkRefunded(ctx context.Context, id string) (*domain.Payment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	payment, err := lockForSettlement(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusSuccess {
		return nil, fmt.Errorf("cannot refund payment in status %s: %w",
			payment.Status, domain.ErrInvalidState)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE payments SET status = $2 WHERE id = $1`,
		payment.ID, domain.PaymentStatusRefunded)
	if err != nil {
		return nil, err
	}

	if payment.OrderID != "" {
		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET payment_status = $2, updated_at = $3 WHERE id = $1
		`, payment.OrderID, domain.PaymentStateRefunded, now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	payment.Status = domain.PaymentStatusRefunded
	return payment, nil
}

// materializeOrder turns the draft carried in payment metadata into a real
// order inside the settlement transaction. Prices are re-resolved against
// the catalog; the draft only pins quantities and options.
func (r *Repository) materializeOrder(ctx context.Context, tx *sql.Tx, payment *domain.Payment) (*domain.Order, error) {
	if len(payment.Metadata) == 0 {
		return nil, fmt.Errorf("payment %s has no order and no draft: %w", payment.ID, domain.ErrInvalidState)
	}

	var draft domain.OrderDraft
	if err := json.Unmarshal(payment.Metadata, &draft); err != nil {
		return nil, fmt.Errorf("decode order draft for payment %s: %w", payment.ID, err)
	}

	in := orders.CreateInput{
		UserID:          payment.UserID,
		ShippingAddress: draft.ShippingAddress,
		PaymentMethod:   payment.Method,
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

	products, err := r.orders.ResolveProducts(ctx, in.Items)
	if err != nil {
		return nil, err
	}
	order, err := orders.PriceOrder(in, products)
	if err != nil {
		return nil, err
	}
	if err := r.orders.CreateTx(ctx, tx, order); err != nil {
		return nil, err
	}
	return order, nil
}

const selectPayment = `
	SELECT id, order_id, user_id, amount, currency, method, status,
	       provider_ref, provider_payload, metadata,
	       initiated_at, completed_at, failed_at
	FROM payments`

// lockForSettlement locks the order row before the payment row. Every writer
// that touches both tables (settlement here, delete in the orders repository)
// takes locks in that order, so concurrent settlements of two payments for
// the same order serialize on the order instead of deadlocking. A payment's
// order_id only ever moves from NULL to a value inside a settlement, so
// reading it without a lock first is safe.
func lockForSettlement(ctx context.Context, tx *sql.Tx, id string) (*domain.Payment, error) {
	var orderID sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT order_id FROM payments WHERE id = $1`, id).Scan(&orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if orderID.Valid {
		var locked string
		err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, orderID.String).Scan(&locked)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, domain.ErrNotFound
			}
			return nil, err
		}
	}

	row := tx.QueryRowContext(ctx, selectPayment+` WHERE id = $1 FOR UPDATE`, id)
	return scanPayment(row)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	payment := &domain.Payment{}
	var orderID, providerRef sql.NullString
	var providerPayload, metadata []byte
	var completedAt, failedAt sql.NullTime

	err := row.Scan(&payment.ID, &orderID, &payment.UserID, &payment.Amount,
		&payment.Currency, &payment.Method, &payment.Status, &providerRef,
		&providerPayload, &metadata, &payment.InitiatedAt, &completedAt, &failedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	payment.OrderID = orderID.String
	payment.ProviderRef = providerRef.String
	payment.ProviderPayload = providerPayload
	payment.Metadata = metadata
	if completedAt.Valid {
		payment.CompletedAt = &completedAt.Time
	}
	if failedAt.Valid {
		payment.FailedAt = &failedAt.Time
	}
	return payment, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
