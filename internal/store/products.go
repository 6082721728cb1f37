package store

import (
	"context"

	"storefront-service/internal/models"
)

// GetProductByID retrieves a product by ID
func (q queries) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := q.get(ctx, &product, "SELECT id, name, price, quantity, created_at FROM products WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// LockProductByID retrieves a product and holds its row lock until the transaction ends
func (q queries) LockProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := q.get(ctx, &product,
		"SELECT id, name, price, quantity, created_at FROM products WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// DecrementStock subtracts quantity from on-hand stock, never letting it go negative
func (q queries) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := q.q.ExecContext(ctx,
		"UPDATE products SET quantity = quantity - $1 WHERE id = $2 AND quantity >= $1",
		quantity, productID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientStock
	}
	return nil
}
