package store

import (
	"context"
	"fmt"

	"storefront-service/internal/models"
)

const customerColumns = `id, email, password_hash, first_name, last_name, mobile, status, is_guest,
	provider_id, verification_token, verification_expires_at, reset_token, reset_expires_at,
	created_at, updated_at`

// GetCustomerByID retrieves a customer by ID
func (q queries) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	var customer models.Customer
	if err := q.get(ctx, &customer, "SELECT "+customerColumns+" FROM customers WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetCustomerByEmail retrieves a customer by email, case-insensitively
func (q queries) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var customer models.Customer
	err := q.get(ctx, &customer,
		"SELECT "+customerColumns+" FROM customers WHERE lower(email) = lower($1)", email)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetCustomerByVerificationToken retrieves the customer holding an email verification token
func (q queries) GetCustomerByVerificationToken(ctx context.Context, token string) (*models.Customer, error) {
	var customer models.Customer
	err := q.get(ctx, &customer,
		"SELECT "+customerColumns+" FROM customers WHERE verification_token = $1", token)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetCustomerByResetToken retrieves the customer holding a password reset token
func (q queries) GetCustomerByResetToken(ctx context.Context, token string) (*models.Customer, error) {
	var customer models.Customer
	err := q.get(ctx, &customer,
		"SELECT "+customerColumns+" FROM customers WHERE reset_token = $1", token)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateCustomer inserts a customer; a taken email yields ErrDuplicate
func (q queries) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	query := `
		INSERT INTO customers (email, password_hash, first_name, last_name, mobile, status, is_guest,
			provider_id, verification_token, verification_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err := q.get(ctx, customer, query,
		customer.Email, customer.PasswordHash, customer.FirstName, customer.LastName, customer.Mobile,
		customer.Status, customer.IsGuest, customer.ProviderID, customer.VerificationToken,
		customer.VerificationExpires)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// CreateGuestCustomer inserts a guest for email unless one exists, then returns the stored row.
// A concurrent insert for the same email blocks on the unique index and the loser re-reads the winner.
func (q queries) CreateGuestCustomer(ctx context.Context, email string) (*models.Customer, error) {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO customers (email, status, is_guest)
		VALUES ($1, $2, TRUE)
		ON CONFLICT ((lower(email))) DO NOTHING`,
		email, models.CustomerStatusGuest)
	if err != nil {
		return nil, fmt.Errorf("failed to insert guest customer: %w", err)
	}
	return q.GetCustomerByEmail(ctx, email)
}

// UpdateCustomer persists the mutable customer fields
func (q queries) UpdateCustomer(ctx context.Context, customer *models.Customer) error {
	query := `
		UPDATE customers SET
			password_hash = $1, first_name = $2, last_name = $3, mobile = $4, status = $5,
			is_guest = $6, provider_id = $7, verification_token = $8, verification_expires_at = $9,
			reset_token = $10, reset_expires_at = $11, updated_at = NOW()
		WHERE id = $12
		RETURNING updated_at`

	return q.get(ctx, &customer.UpdatedAt, query,
		customer.PasswordHash, customer.FirstName, customer.LastName, customer.Mobile, customer.Status,
		customer.IsGuest, customer.ProviderID, customer.VerificationToken, customer.VerificationExpires,
		customer.ResetToken, customer.ResetExpires, customer.ID)
}
