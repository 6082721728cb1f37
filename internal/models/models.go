package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// CustomerStatus is the lifecycle state of a customer account
type CustomerStatus string

// Customer statuses
const (
	CustomerStatusPending  CustomerStatus = "PENDING"
	CustomerStatusActive   CustomerStatus = "ACTIVE"
	CustomerStatusInactive CustomerStatus = "INACTIVE"
	CustomerStatusGuest    CustomerStatus = "GUEST"
)

// Customer represents a storefront account, registered, federated or guest
type Customer struct {
	ID                  int64          `db:"id" json:"id"`
	Email               string         `db:"email" json:"email"`
	PasswordHash        sql.NullString `db:"password_hash" json:"-"`
	FirstName           string         `db:"first_name" json:"first_name"`
	LastName            string         `db:"last_name" json:"last_name"`
	Mobile              string         `db:"mobile" json:"mobile,omitempty"`
	Status              CustomerStatus `db:"status" json:"status"`
	IsGuest             bool           `db:"is_guest" json:"is_guest"`
	ProviderID          sql.NullString `db:"provider_id" json:"-"`
	VerificationToken   sql.NullString `db:"verification_token" json:"-"`
	VerificationExpires sql.NullTime   `db:"verification_expires_at" json:"-"`
	ResetToken          sql.NullString `db:"reset_token" json:"-"`
	ResetExpires        sql.NullTime   `db:"reset_expires_at" json:"-"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name
func (c *Customer) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	if c.FirstName == "" {
		return c.LastName
	}
	return c.FirstName + " " + c.LastName
}

// AddressType is the role an address plays at checkout
type AddressType int

// Address types, matching the address_types lookup table
const (
	AddressTypeShipping AddressType = 1
	AddressTypeBilling  AddressType = 2
	AddressTypeBoth     AddressType = 3
)

func (t AddressType) String() string {
	switch t {
	case AddressTypeShipping:
		return "Shipping"
	case AddressTypeBilling:
		return "Billing"
	case AddressTypeBoth:
		return "Both"
	default:
		return "Unknown"
	}
}

// Valid reports whether t is a known address type
func (t AddressType) Valid() bool {
	return t == AddressTypeShipping || t == AddressTypeBilling || t == AddressTypeBoth
}

// Address represents a customer's shipping, billing or dual-purpose address
type Address struct {
	ID           int64       `db:"id" json:"id"`
	CustomerID   int64       `db:"customer_id" json:"customer_id"`
	Type         AddressType `db:"address_type_id" json:"address_type_id"`
	FirstName    string      `db:"first_name" json:"first_name"`
	LastName     string      `db:"last_name" json:"last_name"`
	Phone        string      `db:"phone" json:"phone"`
	StreetName   string      `db:"street_name" json:"street_name"`
	StreetNumber string      `db:"street_number" json:"street_number"`
	PostalCode   string      `db:"postal_code" json:"postal_code"`
	City         string      `db:"city" json:"city"`
	CountryCode  string      `db:"country_code" json:"country_code"`
	IsPrimary    bool        `db:"is_primary" json:"is_primary"`
	IsActive     bool        `db:"is_active" json:"is_active"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

// Product represents a catalog item with on-hand stock
type Product struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Quantity  int             `db:"quantity" json:"quantity"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Order represents a placed checkout
type Order struct {
	ID                int64           `db:"id" json:"id"`
	CustomerID        int64           `db:"customer_id" json:"customer_id"`
	GuestEmail        sql.NullString  `db:"guest_email" json:"-"`
	OrderDate         time.Time       `db:"order_date" json:"order_date"`
	Status            string          `db:"status" json:"status"`
	TotalAmount       decimal.Decimal `db:"total_amount" json:"total_amount"`
	Note              string          `db:"note" json:"note,omitempty"`
	BillingAddressID  int64           `db:"billing_address_id" json:"billing_address_id"`
	ShippingAddressID int64           `db:"shipping_address_id" json:"shipping_address_id"`
	ExternalOrderID   string          `db:"external_order_id" json:"external_order_id"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// OrderItem represents one product line in an order
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusShipped   = "SHIPPED"
	OrderStatusCancelled = "CANCELLED"
)
