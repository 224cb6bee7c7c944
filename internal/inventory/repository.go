package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/strikerzone/checkout/internal/domain"
)

// Guard performs the atomic stock reservation for order placement. The
// decrement runs inside the caller's transaction so that a failure anywhere
// in order creation rolls the stock back with everything else.
type Guard struct {
	db *sql.DB
}

func NewGuard(db *sql.DB) *Guard {
	return &Guard{db: db}
}

// Decrement reserves quantity units of a product. The compare-and-swap in
// the WHERE clause is what keeps two concurrent orders for the last unit
// from both succeeding: exactly one UPDATE matches the row.
func (g *Guard) Decrement(ctx context.Context, tx *sql.Tx, productID string, quantity int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Distinguish an unknown product from a sold-out one.
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
		}
		return fmt.Errorf("product %s: %w", productID, domain.ErrInsufficientStock)
	}

	return nil
}

func (g *Guard) GetStock(ctx context.Context, productID string) (int, error) {
	var stock int
	err := g.db.QueryRowContext(ctx,
		`SELECT stock FROM products WHERE id = $1`, productID,
	).Scan(&stock)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return stock, nil
}
