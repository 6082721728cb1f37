package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to TEST_DATABASE_URL and applies the schema
func openTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - set TEST_DATABASE_URL to run")
	}

	store, err := NewStore(url, 5)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
}

func insertProduct(t *testing.T, store *Store, quantity int, price string) int64 {
	t.Helper()
	var id int64
	err := store.GetDB().QueryRowxContext(context.Background(),
		"INSERT INTO products (name, price, quantity) VALUES ($1, $2, $3) RETURNING id",
		"Medjool Dates 1kg", price, quantity).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestCustomers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	email := uniqueEmail("layla")

	customer := &models.Customer{
		Email:        email,
		PasswordHash: sql.NullString{String: "hash", Valid: true},
		FirstName:    "Layla",
		Status:       models.CustomerStatusPending,
	}
	require.NoError(t, store.CreateCustomer(ctx, customer))
	assert.NotZero(t, customer.ID)

	err := store.CreateCustomer(ctx, &models.Customer{Email: email, Status: models.CustomerStatusPending})
	assert.ErrorIs(t, err, ErrDuplicate)

	found, err := store.GetCustomerByEmail(ctx, "LAYLA"+email[len("layla"):])
	require.NoError(t, err)
	assert.Equal(t, customer.ID, found.ID)

	found.Status = models.CustomerStatusActive
	found.ResetToken = sql.NullString{String: "reset-" + email, Valid: true}
	require.NoError(t, store.UpdateCustomer(ctx, found))

	byToken, err := store.GetCustomerByResetToken(ctx, "reset-"+email)
	require.NoError(t, err)
	assert.Equal(t, models.CustomerStatusActive, byToken.Status)

	_, err = store.GetCustomerByID(ctx, -1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateGuestCustomer_IsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	email := uniqueEmail("guest")

	first, err := store.CreateGuestCustomer(ctx, email)
	require.NoError(t, err)
	assert.True(t, first.IsGuest)
	assert.Equal(t, models.CustomerStatusGuest, first.Status)

	second, err := store.CreateGuestCustomer(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestAddresses_OnePrimaryPerType(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	customer, err := store.CreateGuestCustomer(ctx, uniqueEmail("addr"))
	require.NoError(t, err)

	primary := &models.Address{CustomerID: customer.ID, Type: models.AddressTypeShipping, City: "Dubai",
		IsPrimary: true, IsActive: true}
	require.NoError(t, store.SaveAddress(ctx, primary))

	second := &models.Address{CustomerID: customer.ID, Type: models.AddressTypeShipping, City: "Sharjah",
		IsPrimary: true, IsActive: true}
	assert.ErrorIs(t, store.SaveAddress(ctx, second), ErrDuplicate, "a second active primary of the same type must be rejected")
	assert.Zero(t, second.ID)

	second.IsPrimary = false
	require.NoError(t, store.SaveAddress(ctx, second))

	active, err := store.GetActiveAddress(ctx, customer.ID, models.AddressTypeShipping)
	require.NoError(t, err)
	assert.Equal(t, primary.ID, active.ID)

	_, err = store.GetAddressByID(ctx, primary.ID, customer.ID+1)
	assert.ErrorIs(t, err, ErrNotFound)

	addresses, err := store.ListAddresses(ctx, customer.ID)
	require.NoError(t, err)
	assert.Len(t, addresses, 2)
}

func TestSaveAddress_DuplicatePrimaryKeepsTransactionUsable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	customer, err := store.CreateGuestCustomer(ctx, uniqueEmail("dup"))
	require.NoError(t, err)
	require.NoError(t, store.SaveAddress(ctx, &models.Address{CustomerID: customer.ID,
		Type: models.AddressTypeBilling, City: "Dubai", IsPrimary: true, IsActive: true}))

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	racer := &models.Address{CustomerID: customer.ID, Type: models.AddressTypeBilling, City: "Ajman",
		IsPrimary: true, IsActive: true}
	require.ErrorIs(t, tx.SaveAddress(ctx, racer), ErrDuplicate)

	existing, err := tx.GetActiveAddress(ctx, customer.ID, models.AddressTypeBilling)
	require.NoError(t, err)
	existing.City = "Ajman"
	require.NoError(t, tx.SaveAddress(ctx, existing))
	require.NoError(t, tx.Commit())

	active, err := store.GetActiveAddress(ctx, customer.ID, models.AddressTypeBilling)
	require.NoError(t, err)
	assert.Equal(t, "Ajman", active.City)
}

func TestCheckoutTransaction(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	productID := insertProduct(t, store, 3, "12.50")

	customer, err := store.CreateGuestCustomer(ctx, uniqueEmail("tx"))
	require.NoError(t, err)
	address := &models.Address{CustomerID: customer.ID, Type: models.AddressTypeBoth, City: "Dubai",
		IsPrimary: true, IsActive: true}
	require.NoError(t, store.SaveAddress(ctx, address))

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)

	product, err := tx.LockProductByID(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 3, product.Quantity)

	order := &models.Order{
		CustomerID:        customer.ID,
		Status:            models.OrderStatusPending,
		TotalAmount:       decimal.RequireFromString("25"),
		BillingAddressID:  address.ID,
		ShippingAddressID: address.ID,
		ExternalOrderID:   "ORD-TEST",
	}
	require.NoError(t, tx.CreateOrder(ctx, order))
	require.NoError(t, tx.DecrementStock(ctx, productID, 2))
	assert.ErrorIs(t, tx.DecrementStock(ctx, productID, 2), ErrInsufficientStock)
	require.NoError(t, tx.CreateOrderItem(ctx, &models.OrderItem{
		OrderID: order.ID, ProductID: productID, Quantity: 2, UnitPrice: decimal.RequireFromString("12.50"),
	}))
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback(), "rollback after commit is a no-op")

	stored, err := store.GetProductByID(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Quantity)

	items, err := store.GetOrderItemsByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].UnitPrice.Equal(decimal.RequireFromString("12.5")))
}

func TestRollbackDiscardsWrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	productID := insertProduct(t, store, 5, "3.00")

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DecrementStock(ctx, productID, 4))
	require.NoError(t, tx.Rollback())

	product, err := store.GetProductByID(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 5, product.Quantity)
}
