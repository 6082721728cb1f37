package service

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// Notifier sends the storefront's emails; implementations report failure as false and never panic
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, name, token string) bool
	SendPasswordResetEmail(ctx context.Context, to, name, token string) bool
	SendPasswordChangedEmail(ctx context.Context, to, name string) bool
	SendEmailWithAttachment(ctx context.Context, to, subject, body string, data []byte, filename string) bool
}

// ReceiptGenerator renders an order receipt document
type ReceiptGenerator interface {
	Generate(order *models.Order, customer *models.Customer, items []models.OrderItem,
		shipping, billing *models.Address) ([]byte, error)
}

// ReceiptArchive keeps generated receipts
type ReceiptArchive interface {
	Store(ctx context.Context, orderID int64, data []byte) (string, error)
}

// EventPublisher publishes domain events after commit
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishCustomerRegistered(ctx context.Context, event *models.CustomerRegisteredEvent) error
}

// IdempotencyStore remembers which order a checkout idempotency key produced.
// ReserveIdempotencyKey claims a key atomically; when it is taken, orderID is the recorded
// order or 0 while the first checkout is still running.
type IdempotencyStore interface {
	ReserveIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (orderID int64, reserved bool, err error)
	SetIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// Locker takes short-lived distributed locks
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl, wait time.Duration) (func(), bool, error)
}

// withTx runs fn inside a transaction, committing on success and rolling back on error or panic
func withTx(ctx context.Context, gateway store.Gateway, fn func(tx store.Transaction) error) (err error) {
	tx, err := gateway.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in transaction: %v", r)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				util.GetLogger().Error("Failed to roll back transaction", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// detach keeps ctx values (trace span) but drops its cancellation, for work that runs after commit
func detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
