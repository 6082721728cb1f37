package store

import (
	"context"

	"storefront-service/internal/models"
)

const orderColumns = `id, customer_id, guest_email, order_date, status, total_amount, note,
	billing_address_id, shipping_address_id, external_order_id, created_at`

// CreateOrder creates a new order
func (q queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (customer_id, guest_email, status, total_amount, note,
			billing_address_id, shipping_address_id, external_order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, order_date, created_at`

	return q.get(ctx, order, query,
		order.CustomerID, order.GuestEmail, order.Status, order.TotalAmount, order.Note,
		order.BillingAddressID, order.ShippingAddressID, order.ExternalOrderID)
}

// GetOrderByID retrieves an order by ID
func (q queries) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := q.get(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateOrderItem creates a new order item
func (q queries) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return q.get(ctx, item, query,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice)
}

// GetOrderItemsByOrderID retrieves all items for an order
func (q queries) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := q.selectRows(ctx, &items,
		"SELECT id, order_id, product_id, quantity, unit_price, created_at FROM order_items WHERE order_id = $1 ORDER BY id",
		orderID)
	return items, err
}
