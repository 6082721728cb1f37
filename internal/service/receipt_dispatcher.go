package service

import (
	"context"
	"fmt"
	"html"

	"storefront-service/internal/models"
	"storefront-service/internal/receipt"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// ReceiptDispatcher renders a committed order's receipt and emails it to the buyer
type ReceiptDispatcher struct {
	repo      store.Repository
	generator ReceiptGenerator
	notifier  Notifier
	archive   ReceiptArchive
	brand     string
	logger    *zap.Logger
}

// NewReceiptDispatcher creates a new receipt dispatcher
func NewReceiptDispatcher(repo store.Repository, generator ReceiptGenerator, notifier Notifier, brand string) *ReceiptDispatcher {
	return &ReceiptDispatcher{
		repo:      repo,
		generator: generator,
		notifier:  notifier,
		brand:     brand,
		logger:    util.GetLogger(),
	}
}

// WithArchive uploads every generated receipt before it is emailed
func (d *ReceiptDispatcher) WithArchive(archive ReceiptArchive) *ReceiptDispatcher {
	d.archive = archive
	return d
}

// Dispatch loads the persisted order, renders its receipt and sends it.
// It only reads committed state and never modifies the order.
func (d *ReceiptDispatcher) Dispatch(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "ReceiptDispatcher.Dispatch")
	defer span.End()

	order, customer, items, shipping, billing, err := d.load(ctx, orderID)
	if err != nil {
		util.ReceiptsFailedTotal.WithLabelValues("load").Inc()
		util.RecordError(span, err)
		return err
	}

	pdf, err := d.generator.Generate(order, customer, items, shipping, billing)
	if err != nil {
		util.ReceiptsFailedTotal.WithLabelValues("generate").Inc()
		util.RecordError(span, err)
		return fmt.Errorf("failed to generate receipt for order %d: %w", orderID, err)
	}

	if d.archive != nil {
		if key, err := d.archive.Store(ctx, order.ID, pdf); err != nil {
			util.ReceiptsFailedTotal.WithLabelValues("archive").Inc()
			d.logger.Warn("Failed to archive receipt", zap.Int64("order_id", order.ID), zap.Error(err))
		} else {
			d.logger.Debug("Receipt archived", zap.Int64("order_id", order.ID), zap.String("key", key))
		}
	}

	to := customer.Email
	if order.GuestEmail.Valid {
		to = order.GuestEmail.String
	}

	subject := fmt.Sprintf("Your %s order %s", d.brand, order.ExternalOrderID)
	if !d.notifier.SendEmailWithAttachment(ctx, to, subject, d.body(order, customer), pdf, receipt.Filename(order)) {
		util.ReceiptsFailedTotal.WithLabelValues("send").Inc()
		err := fmt.Errorf("receipt email for order %d was not sent", orderID)
		util.RecordError(span, err)
		return err
	}

	util.ReceiptsSentTotal.Inc()
	d.logger.Info("Receipt sent",
		zap.Int64("order_id", order.ID),
		zap.Int64("customer_id", customer.ID),
		zap.String("email", to))
	return nil
}

// HandleOrderPlaced delivers the receipt for an OrderPlaced event that asked for it
func (d *ReceiptDispatcher) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	if !event.SendReceipt {
		d.logger.Debug("Receipt already handled in request", zap.Int64("order_id", event.OrderID))
		return nil
	}

	d.logger.Info("Delivering receipt",
		zap.Int64("order_id", event.OrderID),
		zap.String("event_id", event.EventID))

	return d.Dispatch(ctx, event.OrderID)
}

func (d *ReceiptDispatcher) load(ctx context.Context, orderID int64) (*models.Order, *models.Customer,
	[]models.OrderItem, *models.Address, *models.Address, error) {
	order, err := d.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}

	items, err := d.repo.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to load items of order %d: %w", orderID, err)
	}

	customer, err := d.repo.GetCustomerByID(ctx, order.CustomerID)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to load customer %d: %w", order.CustomerID, err)
	}

	shipping, err := d.repo.GetAddressByID(ctx, order.ShippingAddressID, order.CustomerID)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to load shipping address: %w", err)
	}

	billing := shipping
	if order.BillingAddressID != order.ShippingAddressID {
		billing, err = d.repo.GetAddressByID(ctx, order.BillingAddressID, order.CustomerID)
		if err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("failed to load billing address: %w", err)
		}
	}

	return order, customer, items, shipping, billing, nil
}

func (d *ReceiptDispatcher) body(order *models.Order, customer *models.Customer) string {
	name := customer.FullName()
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"<p>Hello %s,</p><p>Thank you for your order at %s.</p>"+
			"<p>Order: <strong>%s</strong><br>Total: %s</p>"+
			"<p>Your receipt is attached.</p>",
		html.EscapeString(name), html.EscapeString(d.brand),
		html.EscapeString(order.ExternalOrderID), order.TotalAmount.StringFixed(2))
}
