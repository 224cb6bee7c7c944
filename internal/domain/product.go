package domain

// Product is the slice of the catalog this core reads. Only stock is ever
// written, and only through the order-creation transaction.
type Product struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	SalePrice int64  `json:"sale_price,omitempty"`
	Stock     int    `json:"stock"`
}

// EffectivePrice is the price charged at order time: the sale price when one
// is set, the list price otherwise.
func (p Product) EffectivePrice() int64 {
	if p.SalePrice > 0 && p.SalePrice < p.Price {
		return p.SalePrice
	}
	return p.Price
}
