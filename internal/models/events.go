package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeCustomerRegistered = "CUSTOMER_REGISTERED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published after a checkout commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID         int64           `json:"order_id"`
	ExternalOrderID string          `json:"external_order_id"`
	CustomerID      int64           `json:"customer_id"`
	Email           string          `json:"email"`
	Guest           bool            `json:"guest"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Items           []OrderItemData `json:"items"`
	// SendReceipt is set when receipt delivery is left to the consumer.
	SendReceipt bool `json:"send_receipt"`
}

// CustomerRegisteredEvent published after a registration commits
type CustomerRegisteredEvent struct {
	BaseEvent
	CustomerID int64  `json:"customer_id"`
	Email      string `json:"email"`
	Federated  bool   `json:"federated"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
