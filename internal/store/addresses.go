package store

import (
	"context"
	"errors"

	"storefront-service/internal/models"
)

const addressColumns = `id, customer_id, address_type_id, first_name, last_name, phone, street_name,
	street_number, postal_code, city, country_code, is_primary, is_active, created_at`

// GetAddressByID retrieves an address owned by customerID
func (q queries) GetAddressByID(ctx context.Context, id, customerID int64) (*models.Address, error) {
	var address models.Address
	err := q.get(ctx, &address,
		"SELECT "+addressColumns+" FROM addresses WHERE id = $1 AND customer_id = $2", id, customerID)
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// GetActiveAddress retrieves the current active address of a type, preferring the primary one
func (q queries) GetActiveAddress(ctx context.Context, customerID int64, addressType models.AddressType) (*models.Address, error) {
	var address models.Address
	err := q.get(ctx, &address, `
		SELECT `+addressColumns+` FROM addresses
		WHERE customer_id = $1 AND address_type_id = $2 AND is_active
		ORDER BY is_primary DESC, created_at DESC, id DESC
		LIMIT 1`, customerID, addressType)
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// ListAddresses retrieves all active addresses of a customer
func (q queries) ListAddresses(ctx context.Context, customerID int64) ([]models.Address, error) {
	var addresses []models.Address
	err := q.selectRows(ctx, &addresses, `
		SELECT `+addressColumns+` FROM addresses
		WHERE customer_id = $1 AND is_active
		ORDER BY address_type_id, is_primary DESC, created_at DESC`, customerID)
	return addresses, err
}

// ListAddressesByType retrieves the active addresses of one type, locking them for update
func (q queries) ListAddressesByType(ctx context.Context, customerID int64, addressType models.AddressType) ([]models.Address, error) {
	var addresses []models.Address
	err := q.selectRows(ctx, &addresses, `
		SELECT `+addressColumns+` FROM addresses
		WHERE customer_id = $1 AND address_type_id = $2 AND is_active
		ORDER BY id
		FOR UPDATE`, customerID, addressType)
	return addresses, err
}

// SaveAddress inserts a new address (ID == 0) or updates an existing one.
// An insert that would add a second active primary address of a type returns ErrDuplicate
// and leaves the transaction usable; a concurrent insert holding the slot is waited for first.
func (q queries) SaveAddress(ctx context.Context, address *models.Address) error {
	if address.ID == 0 {
		query := `
			INSERT INTO addresses (customer_id, address_type_id, first_name, last_name, phone, street_name,
				street_number, postal_code, city, country_code, is_primary, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (customer_id, address_type_id) WHERE is_primary AND is_active DO NOTHING
			RETURNING id, created_at`

		err := q.get(ctx, address, query,
			address.CustomerID, address.Type, address.FirstName, address.LastName, address.Phone,
			address.StreetName, address.StreetNumber, address.PostalCode, address.City,
			address.CountryCode, address.IsPrimary, address.IsActive)
		if errors.Is(err, ErrNotFound) {
			return ErrDuplicate
		}
		return err
	}

	res, err := q.q.ExecContext(ctx, `
		UPDATE addresses SET
			first_name = $1, last_name = $2, phone = $3, street_name = $4, street_number = $5,
			postal_code = $6, city = $7, country_code = $8, is_primary = $9, is_active = $10
		WHERE id = $11 AND customer_id = $12`,
		address.FirstName, address.LastName, address.Phone, address.StreetName, address.StreetNumber,
		address.PostalCode, address.City, address.CountryCode, address.IsPrimary, address.IsActive,
		address.ID, address.CustomerID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
