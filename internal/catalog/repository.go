package catalog

import (
	"context"
	"database/sql"

	"github.com/strikerzone/checkout/internal/domain"
)

// Repository reads the products table. The checkout core never writes
// products here; the only stock mutation happens through the inventory
// guard inside the order-creation transaction.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p := &domain.Product{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price, COALESCE(sale_price, 0), stock
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Price, &p.SalePrice, &p.Stock)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return p, nil
}
