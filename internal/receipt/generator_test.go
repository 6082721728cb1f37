package receipt

import (
	"bytes"
	"testing"
	"time"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	g := NewGenerator("Dates Store", "Al Quoz 3, Dubai")

	order := &models.Order{
		ID:              11,
		ExternalOrderID: "ORD-20240301-ABCDEF12",
		OrderDate:       time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		TotalAmount:     decimal.RequireFromString("32.50"),
		Note:            "Leave at the door",
	}
	customer := &models.Customer{Email: "layla@example.com", FirstName: "Layla", LastName: "Haddad"}
	shipping := &models.Address{FirstName: "Layla", City: "Dubai", CountryCode: "AE"}
	items := []models.OrderItem{
		{ProductID: 5, Quantity: 2, UnitPrice: decimal.RequireFromString("10")},
		{ProductID: 6, Quantity: 1, UnitPrice: decimal.RequireFromString("12.5")},
	}

	pdf, err := g.Generate(order, customer, items, shipping, shipping)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	// a missing billing address still renders
	pdf, err = g.Generate(order, customer, items, shipping, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
}

func TestGenerate_RequiresOrderAndCustomer(t *testing.T) {
	g := NewGenerator("Dates Store", "")

	_, err := g.Generate(nil, &models.Customer{}, nil, nil, nil)
	assert.Error(t, err)

	_, err = g.Generate(&models.Order{}, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestFilenameAndKey(t *testing.T) {
	assert.Equal(t, "receipt-ORD-1.pdf", Filename(&models.Order{ID: 3, ExternalOrderID: "ORD-1"}))
	assert.Equal(t, "receipt-3.pdf", Filename(&models.Order{ID: 3}))
	assert.Equal(t, "receipts/3.pdf", Key(3))
}
