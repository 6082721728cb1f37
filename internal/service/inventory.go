package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LineItem is one requested product line of a checkout
type LineItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func productNotFound(productID int64) *Error {
	return notFoundError(fmt.Sprintf("Product with ID %d not found", productID))
}

func insufficientStock(productID int64, available, requested int) *Error {
	return businessError(CodeInsufficientStock,
		fmt.Sprintf("Insufficient stock for product ID %d. Available: %d, Requested: %d", productID, available, requested))
}

// reserveStock is the read-only first pass: it locks every product row in ascending id order
// and checks the aggregated requested quantity against on-hand stock.
func reserveStock(ctx context.Context, repo store.Repository, items []LineItem) (map[int64]*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Inventory.ReserveStock")
	defer span.End()

	requested := make(map[int64]int, len(items))
	for _, item := range items {
		requested[item.ProductID] += item.Quantity
	}

	ids := make([]int64, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products := make(map[int64]*models.Product, len(ids))
	for _, id := range ids {
		product, err := repo.LockProductByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, productNotFound(id)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to lock product %d: %w", id, err)
		}
		if product.Quantity < requested[id] {
			return nil, insufficientStock(id, product.Quantity, requested[id])
		}
		products[id] = product
	}

	return products, nil
}

// commitStock is the second pass: per line it re-reads the locked product, re-checks,
// decrements and records the order item.
func commitStock(ctx context.Context, repo store.Repository, orderID int64, items []LineItem,
	products map[int64]*models.Product) ([]models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "Inventory.CommitStock")
	defer span.End()

	logger := util.GetLogger()
	orderItems := make([]models.OrderItem, 0, len(items))

	for _, item := range items {
		product, err := repo.LockProductByID(ctx, item.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, productNotFound(item.ProductID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to re-read product %d: %w", item.ProductID, err)
		}
		if product.Quantity < item.Quantity {
			return nil, insufficientStock(item.ProductID, product.Quantity, item.Quantity)
		}

		if err := repo.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			if errors.Is(err, store.ErrInsufficientStock) {
				return nil, insufficientStock(item.ProductID, product.Quantity, item.Quantity)
			}
			return nil, fmt.Errorf("failed to decrement stock for product %d: %w", item.ProductID, err)
		}
		util.StockDecrementsTotal.Inc()

		unitPrice := item.Price
		if !unitPrice.IsPositive() {
			if known, ok := products[item.ProductID]; ok {
				unitPrice = known.Price
			} else {
				unitPrice = product.Price
			}
		}

		orderItem := models.OrderItem{
			OrderID:   orderID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: unitPrice,
		}
		if err := repo.CreateOrderItem(ctx, &orderItem); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
		orderItems = append(orderItems, orderItem)

		logger.Debug("Stock decremented",
			zap.Int64("order_id", orderID),
			zap.Int64("product_id", item.ProductID),
			zap.Int("quantity", item.Quantity),
			zap.Int("remaining", product.Quantity-item.Quantity))
	}

	return orderItems, nil
}
