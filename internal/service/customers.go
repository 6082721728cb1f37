package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// CustomerService resolves customers for checkout
type CustomerService struct {
	gateway store.Gateway
	logger  *zap.Logger
}

// NewCustomerService creates a new customer service
func NewCustomerService(gateway store.Gateway) *CustomerService {
	return &CustomerService{
		gateway: gateway,
		logger:  util.GetLogger(),
	}
}

// GetOrCreateGuestCustomer returns the customer registered under email, creating a guest when there is none
func (s *CustomerService) GetOrCreateGuestCustomer(ctx context.Context, email string) (*models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "CustomerService.GetOrCreateGuestCustomer")
	defer span.End()

	email = normalizeEmail(email)
	if email == "" {
		return nil, validationError("Email is required")
	}

	var customer *models.Customer
	err := withTx(ctx, s.gateway, func(tx store.Transaction) error {
		var err error
		customer, err = getOrCreateGuestCustomer(ctx, tx, email)
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		s.logger.Error("Failed to resolve guest customer", zap.String("email", email), zap.Error(err))
		return nil, asServiceError(err, "Failed to resolve customer")
	}
	return customer, nil
}

// GetCustomer loads a customer profile by id
func (s *CustomerService) GetCustomer(ctx context.Context, customerID int64) (*models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "CustomerService.GetCustomer")
	defer span.End()

	customer, err := s.gateway.GetCustomerByID(ctx, customerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("Customer not found")
	}
	if err != nil {
		util.RecordError(span, err)
		s.logger.Error("Failed to load customer", zap.Int64("customer_id", customerID), zap.Error(err))
		return nil, unexpectedError("Failed to load customer", err)
	}
	return customer, nil
}

// getOrCreateGuestCustomer never modifies an existing customer, whatever its status
func getOrCreateGuestCustomer(ctx context.Context, repo store.Repository, email string) (*models.Customer, error) {
	customer, err := repo.GetCustomerByEmail(ctx, email)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	customer, err = repo.CreateGuestCustomer(ctx, email)
	if err != nil {
		return nil, err
	}

	util.GetLogger().Info("Guest customer created",
		zap.Int64("customer_id", customer.ID),
		zap.String("email", email))
	return customer, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
