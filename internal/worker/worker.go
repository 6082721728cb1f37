package worker

import (
	"context"

	"storefront-service/internal/broker"
	"storefront-service/internal/models"

	"go.uber.org/zap"
)

// OrderPlacedHandler reacts to committed checkouts
type OrderPlacedHandler interface {
	HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
}

// ReceiptWorker delivers receipts for orders placed with asynchronous receipt delivery
type ReceiptWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewReceiptWorker creates a new receipt worker
func NewReceiptWorker(consumer *broker.Consumer, receipts OrderPlacedHandler, logger *zap.Logger) *ReceiptWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(receipts.HandleOrderPlaced)

	return &ReceiptWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       logger,
	}
}

// Start consumes events until ctx is cancelled
func (w *ReceiptWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting receipt worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the consumer
func (w *ReceiptWorker) Stop() error {
	w.logger.Info("Stopping receipt worker")
	return w.consumer.Close()
}
