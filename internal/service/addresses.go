package service

import (
	"context"
	"errors"
	"strings"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// AddressInput carries the editable fields of an address
type AddressInput struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
	StreetName   string `json:"street_name"`
	StreetNumber string `json:"street_number"`
	PostalCode   string `json:"postal_code"`
	City         string `json:"city"`
	CountryCode  string `json:"country_code"`
}

// empty reports whether no field was filled in
func (in *AddressInput) empty() bool {
	if in == nil {
		return true
	}
	for _, f := range []string{in.FirstName, in.LastName, in.Phone, in.StreetName, in.StreetNumber,
		in.PostalCode, in.City, in.CountryCode} {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// applyTo overwrites the mutable fields of a
func (in *AddressInput) applyTo(a *models.Address) {
	a.FirstName = strings.TrimSpace(in.FirstName)
	a.LastName = strings.TrimSpace(in.LastName)
	a.Phone = strings.TrimSpace(in.Phone)
	a.StreetName = strings.TrimSpace(in.StreetName)
	a.StreetNumber = strings.TrimSpace(in.StreetNumber)
	a.PostalCode = strings.TrimSpace(in.PostalCode)
	a.City = strings.TrimSpace(in.City)
	a.CountryCode = strings.ToUpper(strings.TrimSpace(in.CountryCode))
}

// inputFrom copies the editable fields of an existing address
func inputFrom(a *models.Address) *AddressInput {
	return &AddressInput{
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Phone:        a.Phone,
		StreetName:   a.StreetName,
		StreetNumber: a.StreetNumber,
		PostalCode:   a.PostalCode,
		City:         a.City,
		CountryCode:  a.CountryCode,
	}
}

// upsertAddressByType overwrites the customer's active address of addressType,
// or creates it as the primary one when none exists.
func upsertAddressByType(ctx context.Context, repo store.Repository, customerID int64,
	in *AddressInput, addressType models.AddressType) (*models.Address, error) {
	existing, err := repo.GetActiveAddress(ctx, customerID, addressType)
	if errors.Is(err, store.ErrNotFound) {
		address := &models.Address{
			CustomerID: customerID,
			Type:       addressType,
			IsPrimary:  true,
			IsActive:   true,
		}
		in.applyTo(address)
		err = repo.SaveAddress(ctx, address)
		if !errors.Is(err, store.ErrDuplicate) {
			if err != nil {
				return nil, err
			}
			return address, nil
		}
		// a concurrent checkout created the primary row first; update that one
		existing, err = repo.GetActiveAddress(ctx, customerID, addressType)
	}
	if err != nil {
		return nil, err
	}

	in.applyTo(existing)
	if err := repo.SaveAddress(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// createAddress always adds a new row; it becomes primary only if the customer has no active address of the type
func createAddress(ctx context.Context, repo store.Repository, customerID int64,
	in *AddressInput, addressType models.AddressType) (*models.Address, error) {
	_, err := repo.GetActiveAddress(ctx, customerID, addressType)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	address := &models.Address{
		CustomerID: customerID,
		Type:       addressType,
		IsPrimary:  errors.Is(err, store.ErrNotFound),
		IsActive:   true,
	}
	in.applyTo(address)
	err = repo.SaveAddress(ctx, address)
	if errors.Is(err, store.ErrDuplicate) && address.IsPrimary {
		address.ID = 0
		address.IsPrimary = false
		err = repo.SaveAddress(ctx, address)
	}
	if err != nil {
		return nil, err
	}
	return address, nil
}

// ownedAddress loads an active address scoped to its owner
func ownedAddress(ctx context.Context, repo store.Repository, addressID, customerID int64) (*models.Address, error) {
	address, err := repo.GetAddressByID(ctx, addressID, customerID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !address.IsActive) {
		return nil, notFoundError("Address not found")
	}
	if err != nil {
		return nil, err
	}
	return address, nil
}

// AddressService manages a customer's address book
type AddressService struct {
	gateway store.Gateway
	logger  *zap.Logger
}

// NewAddressService creates a new address service
func NewAddressService(gateway store.Gateway) *AddressService {
	return &AddressService{
		gateway: gateway,
		logger:  util.GetLogger(),
	}
}

// ListAddresses returns the customer's active addresses
func (s *AddressService) ListAddresses(ctx context.Context, customerID int64) ([]models.Address, error) {
	ctx, span := util.StartSpan(ctx, "AddressService.ListAddresses")
	defer span.End()

	if _, err := s.gateway.GetCustomerByID(ctx, customerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("Customer not found")
		}
		return nil, unexpectedError("Failed to load addresses", err)
	}

	addresses, err := s.gateway.ListAddresses(ctx, customerID)
	if err != nil {
		util.RecordError(span, err)
		return nil, unexpectedError("Failed to load addresses", err)
	}
	return addresses, nil
}

// AddAddress adds an alternate address; the first address of a type becomes primary
func (s *AddressService) AddAddress(ctx context.Context, customerID int64, addressType models.AddressType,
	in *AddressInput) (*models.Address, error) {
	ctx, span := util.StartSpan(ctx, "AddressService.AddAddress")
	defer span.End()

	if !addressType.Valid() {
		return nil, validationError("Address type is invalid")
	}
	if in.empty() {
		return nil, validationError("Address is required")
	}

	var address *models.Address
	err := withTx(ctx, s.gateway, func(tx store.Transaction) error {
		if _, err := tx.GetCustomerByID(ctx, customerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFoundError("Customer not found")
			}
			return err
		}

		// serialise concurrent adds of the same type on the existing rows
		if _, err := tx.ListAddressesByType(ctx, customerID, addressType); err != nil {
			return err
		}

		var err error
		address, err = createAddress(ctx, tx, customerID, in, addressType)
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, s.fail("Failed to add address", err, customerID)
	}

	s.logger.Info("Address added",
		zap.Int64("customer_id", customerID),
		zap.Int64("address_id", address.ID),
		zap.Stringer("type", addressType))
	return address, nil
}

// SetAddressAsDefault makes addressID the only primary address of its type
func (s *AddressService) SetAddressAsDefault(ctx context.Context, customerID, addressID int64,
	addressType models.AddressType) error {
	ctx, span := util.StartSpan(ctx, "AddressService.SetAddressAsDefault")
	defer span.End()

	if !addressType.Valid() {
		return validationError("Address type is invalid")
	}

	err := withTx(ctx, s.gateway, func(tx store.Transaction) error {
		addresses, err := tx.ListAddressesByType(ctx, customerID, addressType)
		if err != nil {
			return err
		}

		var target *models.Address
		for i := range addresses {
			if addresses[i].ID == addressID {
				target = &addresses[i]
			}
		}
		if target == nil {
			return notFoundError("Address not found")
		}

		// clear the current primary first so the one-primary index is never violated mid-transaction
		for i := range addresses {
			a := &addresses[i]
			if a.ID == addressID || !a.IsPrimary {
				continue
			}
			a.IsPrimary = false
			if err := tx.SaveAddress(ctx, a); err != nil {
				return err
			}
		}

		if target.IsPrimary {
			return nil
		}
		target.IsPrimary = true
		return tx.SaveAddress(ctx, target)
	})
	if err != nil {
		util.RecordError(span, err)
		return s.fail("Failed to set default address", err, customerID)
	}

	s.logger.Info("Default address set",
		zap.Int64("customer_id", customerID),
		zap.Int64("address_id", addressID),
		zap.Stringer("type", addressType))
	return nil
}

// DeleteAddress deactivates an address. When it was primary the newest remaining address of its type is promoted.
func (s *AddressService) DeleteAddress(ctx context.Context, customerID, addressID int64) error {
	ctx, span := util.StartSpan(ctx, "AddressService.DeleteAddress")
	defer span.End()

	err := withTx(ctx, s.gateway, func(tx store.Transaction) error {
		address, err := ownedAddress(ctx, tx, addressID, customerID)
		if err != nil {
			return err
		}

		siblings, err := tx.ListAddressesByType(ctx, customerID, address.Type)
		if err != nil {
			return err
		}

		wasPrimary := address.IsPrimary
		address.IsActive = false
		address.IsPrimary = false
		if err := tx.SaveAddress(ctx, address); err != nil {
			return err
		}
		if !wasPrimary {
			return nil
		}

		var newest *models.Address
		for i := range siblings {
			a := &siblings[i]
			if a.ID == address.ID {
				continue
			}
			if newest == nil || a.CreatedAt.After(newest.CreatedAt) ||
				(a.CreatedAt.Equal(newest.CreatedAt) && a.ID > newest.ID) {
				newest = a
			}
		}
		if newest == nil {
			return nil
		}
		newest.IsPrimary = true
		return tx.SaveAddress(ctx, newest)
	})
	if err != nil {
		util.RecordError(span, err)
		return s.fail("Failed to delete address", err, customerID)
	}

	s.logger.Info("Address deleted",
		zap.Int64("customer_id", customerID),
		zap.Int64("address_id", addressID))
	return nil
}

func (s *AddressService) fail(message string, err error, customerID int64) *Error {
	svcErr := asServiceError(err, message)
	if svcErr.Kind == KindUnexpected {
		s.logger.Error(message, zap.Int64("customer_id", customerID), zap.Error(err))
	}
	return svcErr
}
