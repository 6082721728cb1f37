package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func seedPlacedOrder(g *memGateway, guestEmail string) models.Order {
	customer := g.addCustomer(models.Customer{
		Email:     "layla@example.com",
		FirstName: "Layla",
		Status:    models.CustomerStatusActive,
	})
	shipping := g.addAddress(models.Address{CustomerID: customer.ID, Type: models.AddressTypeShipping, City: "Dubai", IsActive: true})
	billing := g.addAddress(models.Address{CustomerID: customer.ID, Type: models.AddressTypeBilling, City: "Sharjah", IsActive: true})

	order := &models.Order{
		CustomerID:        customer.ID,
		Status:            models.OrderStatusPending,
		TotalAmount:       decimalFrom("42.5"),
		ShippingAddressID: shipping.ID,
		BillingAddressID:  billing.ID,
		ExternalOrderID:   "ORD-20240301-ABCDEF12",
	}
	if guestEmail != "" {
		order.GuestEmail = sql.NullString{String: guestEmail, Valid: true}
	}
	_ = g.CreateOrder(context.Background(), order)
	_ = g.CreateOrderItem(context.Background(), &models.OrderItem{
		OrderID: order.ID, ProductID: 5, Quantity: 2, UnitPrice: decimalFrom("21.25"),
	})
	return *order
}

func TestReceiptDispatcher_Dispatch(t *testing.T) {
	g := newMemGateway()
	order := seedPlacedOrder(g, "")
	notifier := &mockNotifier{}
	generator := &stubGenerator{data: []byte("%PDF")}
	archive := &stubArchive{}

	notifier.On("SendEmailWithAttachment", mock.Anything, "layla@example.com",
		"Your Dates Store order ORD-20240301-ABCDEF12",
		mock.MatchedBy(func(body string) bool {
			return strings.Contains(body, "Hello Layla") && strings.Contains(body, "42.50")
		}),
		[]byte("%PDF"), mock.AnythingOfType("string")).Return(true).Once()

	d := NewReceiptDispatcher(g, generator, notifier, "Dates Store").WithArchive(archive)
	require.NoError(t, d.Dispatch(context.Background(), order.ID))

	assert.Equal(t, 1, generator.calls)
	require.Len(t, generator.items, 1)
	assert.Equal(t, 2, generator.items[0].Quantity)
	assert.Len(t, archive.keys, 1)
	notifier.AssertExpectations(t)
}

func TestReceiptDispatcher_PrefersGuestEmail(t *testing.T) {
	g := newMemGateway()
	order := seedPlacedOrder(g, "guest@example.com")
	notifier := &mockNotifier{}
	notifier.On("SendEmailWithAttachment", mock.Anything, "guest@example.com", mock.Anything, mock.Anything,
		mock.Anything, mock.Anything).Return(true).Once()

	d := NewReceiptDispatcher(g, &stubGenerator{data: []byte("%PDF")}, notifier, "Dates Store")
	require.NoError(t, d.Dispatch(context.Background(), order.ID))
	notifier.AssertExpectations(t)
}

func TestReceiptDispatcher_Failures(t *testing.T) {
	t.Run("unknown order", func(t *testing.T) {
		g := newMemGateway()
		notifier := &mockNotifier{}
		d := NewReceiptDispatcher(g, &stubGenerator{}, notifier, "Dates Store")
		assert.Error(t, d.Dispatch(context.Background(), 12345))
	})

	t.Run("archive failure still sends", func(t *testing.T) {
		g := newMemGateway()
		order := seedPlacedOrder(g, "")
		notifier := &mockNotifier{}
		notifier.On("SendEmailWithAttachment", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
			mock.Anything, mock.Anything).Return(true).Once()

		d := NewReceiptDispatcher(g, &stubGenerator{data: []byte("%PDF")}, notifier, "Dates Store").
			WithArchive(&stubArchive{err: errors.New("bucket missing")})
		require.NoError(t, d.Dispatch(context.Background(), order.ID))
		notifier.AssertExpectations(t)
	})

	t.Run("send failure", func(t *testing.T) {
		g := newMemGateway()
		order := seedPlacedOrder(g, "")
		notifier := &mockNotifier{}
		notifier.On("SendEmailWithAttachment", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
			mock.Anything, mock.Anything).Return(false).Once()

		d := NewReceiptDispatcher(g, &stubGenerator{data: []byte("%PDF")}, notifier, "Dates Store")
		assert.Error(t, d.Dispatch(context.Background(), order.ID))
	})
}

func TestReceiptDispatcher_HandleOrderPlaced(t *testing.T) {
	g := newMemGateway()
	order := seedPlacedOrder(g, "")
	notifier := &mockNotifier{}
	generator := &stubGenerator{data: []byte("%PDF")}
	notifier.On("SendEmailWithAttachment", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything).Return(true).Once()

	d := NewReceiptDispatcher(g, generator, notifier, "Dates Store")

	require.NoError(t, d.HandleOrderPlaced(context.Background(), &models.OrderPlacedEvent{OrderID: order.ID}))
	assert.Equal(t, 0, generator.calls)

	require.NoError(t, d.HandleOrderPlaced(context.Background(), &models.OrderPlacedEvent{OrderID: order.ID, SendReceipt: true}))
	assert.Equal(t, 1, generator.calls)
	notifier.AssertExpectations(t)
}
