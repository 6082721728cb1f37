package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	verificationTTL   = 24 * time.Hour
	passwordResetTTL  = time.Hour
	minPasswordLength = 8
	maxPasswordBytes  = 72

	invalidCredentials = "Invalid email or password"
	invalidToken       = "Invalid or expired token"
)

// AccountService handles registration, login and password management
type AccountService struct {
	gateway    store.Gateway
	notifier   Notifier
	tokens     *TokenIssuer
	publisher  EventPublisher
	logger     *zap.Logger
	now        func() time.Time
	bcryptCost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAccountService creates a new account service
func NewAccountService(gateway store.Gateway, notifier Notifier, tokens *TokenIssuer) *AccountService {
	return &AccountService{
		gateway:    gateway,
		notifier:   notifier,
		tokens:     tokens,
		logger:     util.GetLogger(),
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// WithEvents publishes CustomerRegistered for new accounts
func (s *AccountService) WithEvents(publisher EventPublisher) *AccountService {
	s.publisher = publisher
	return s
}

// RegisterRequest represents a password registration
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Mobile    string `json:"mobile"`
}

// LoginRequest represents a password login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// FederatedLoginRequest carries an identity already verified by Apple or Google
type FederatedLoginRequest struct {
	Provider   string `json:"provider"`
	ProviderID string `json:"provider_id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

// LoginResponse is returned by both login flows
type LoginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Customer  *models.Customer `json:"customer"`
}

// Register creates a pending account and sends its verification email.
// The account is only committed when the email was handed to the mail provider.
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (*models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Register")
	defer span.End()

	email := normalizeEmail(req.Email)
	if err := validateCredentials(email, req.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, unexpectedError("Failed to register", err)
	}

	var customer *models.Customer
	err = withTx(ctx, s.gateway, func(tx store.Transaction) error {
		existing, err := tx.GetCustomerByEmail(ctx, email)
		switch {
		case err == nil && !existing.IsGuest:
			return businessError(CodeDuplicateEmail, "Email is already registered")
		case err == nil:
			customer = existing
		case errors.Is(err, store.ErrNotFound):
			customer = &models.Customer{Email: email}
		default:
			return err
		}

		token := uuid.New().String()
		customer.PasswordHash = sql.NullString{String: string(hash), Valid: true}
		customer.FirstName = strings.TrimSpace(req.FirstName)
		customer.LastName = strings.TrimSpace(req.LastName)
		customer.Mobile = strings.TrimSpace(req.Mobile)
		customer.Status = models.CustomerStatusPending
		customer.IsGuest = false
		customer.VerificationToken = sql.NullString{String: token, Valid: true}
		customer.VerificationExpires = sql.NullTime{Time: s.now().Add(verificationTTL), Valid: true}

		if customer.ID == 0 {
			if err := tx.CreateCustomer(ctx, customer); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return businessError(CodeDuplicateEmail, "Email is already registered")
				}
				return err
			}
		} else if err := tx.UpdateCustomer(ctx, customer); err != nil {
			return err
		}

		if !s.notifier.SendVerificationEmail(ctx, email, customer.FullName(), token) {
			return &Error{Kind: KindUnexpected, Code: CodeDeliveryFailed,
				Message: "Failed to send verification email, please try again"}
		}
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, s.fail("Registration failed", err, zap.String("email", email))
	}

	util.AccountsRegisteredTotal.WithLabelValues("password").Inc()
	s.logger.Info("Customer registered", zap.Int64("customer_id", customer.ID), zap.String("email", email))
	s.publishRegistered(ctx, customer, false)
	return customer, nil
}

// VerifyEmail activates the pending account holding token
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.VerifyEmail")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, validationError("Token is required")
	}

	var customer *models.Customer
	err := withTx(ctx, s.gateway, func(tx store.Transaction) error {
		var err error
		customer, err = tx.GetCustomerByVerificationToken(ctx, token)
		if errors.Is(err, store.ErrNotFound) {
			return businessError(CodeInvalidToken, invalidToken)
		}
		if err != nil {
			return err
		}
		if !customer.VerificationExpires.Valid || s.now().After(customer.VerificationExpires.Time) {
			return businessError(CodeInvalidToken, invalidToken)
		}

		if customer.Status == models.CustomerStatusPending {
			customer.Status = models.CustomerStatusActive
		}
		customer.VerificationToken = sql.NullString{}
		customer.VerificationExpires = sql.NullTime{}
		return tx.UpdateCustomer(ctx, customer)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, s.fail("Email verification failed", err)
	}

	s.logger.Info("Email verified", zap.Int64("customer_id", customer.ID))
	return customer, nil
}

// Login authenticates with email and password.
// Unknown emails and wrong passwords fail identically.
func (s *AccountService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Login")
	defer span.End()

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, validationError("Email and password are required")
	}

	customer, err := s.gateway.GetCustomerByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		util.RecordError(span, err)
		return nil, s.fail("Login failed", err, zap.String("email", email))
	}

	if customer == nil || !customer.PasswordHash.Valid {
		// keep the response time of unknown accounts close to a real comparison
		_ = bcrypt.CompareHashAndPassword(s.dummyPasswordHash(), []byte(req.Password))
		util.LoginsTotal.WithLabelValues("invalid").Inc()
		return nil, businessError(CodeInvalidCredentials, invalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(customer.PasswordHash.String), []byte(req.Password)); err != nil {
		util.LoginsTotal.WithLabelValues("invalid").Inc()
		return nil, businessError(CodeInvalidCredentials, invalidCredentials)
	}

	switch customer.Status {
	case models.CustomerStatusPending:
		util.LoginsTotal.WithLabelValues("unverified").Inc()
		return nil, businessError(CodeUnverified, "Email is not verified")
	case models.CustomerStatusInactive:
		util.LoginsTotal.WithLabelValues("deactivated").Inc()
		return nil, businessError(CodeDeactivated, "Account is deactivated")
	}

	resp, err := s.issue(customer)
	if err != nil {
		util.RecordError(span, err)
		return nil, s.fail("Login failed", err, zap.Int64("customer_id", customer.ID))
	}

	util.LoginsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Customer logged in", zap.Int64("customer_id", customer.ID))
	return resp, nil
}

// FederatedLogin signs in an Apple or Google identity, linking or creating the account by email
func (s *AccountService) FederatedLogin(ctx context.Context, req *FederatedLoginRequest) (*LoginResponse, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.FederatedLogin")
	defer span.End()

	email := normalizeEmail(req.Email)
	if email == "" || !validEmail(email) {
		return nil, validationError("Email is required")
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider != "apple" && provider != "google" {
		return nil, validationError("Provider must be apple or google")
	}
	if strings.TrimSpace(req.ProviderID) == "" {
		return nil, validationError("Provider ID is required")
	}
	providerID := provider + ":" + strings.TrimSpace(req.ProviderID)

	var customer *models.Customer
	created := false
	err := withTx(ctx, s.gateway, func(tx store.Transaction) error {
		existing, err := tx.GetCustomerByEmail(ctx, email)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if existing != nil {
			if existing.Status == models.CustomerStatusInactive {
				return businessError(CodeDeactivated, "Account is deactivated")
			}
			customer = existing
			if !customer.ProviderID.Valid {
				customer.ProviderID = sql.NullString{String: providerID, Valid: true}
			}
			if customer.Status == models.CustomerStatusPending || customer.Status == models.CustomerStatusGuest {
				customer.Status = models.CustomerStatusActive
				customer.IsGuest = false
				customer.VerificationToken = sql.NullString{}
				customer.VerificationExpires = sql.NullTime{}
			}
			if customer.FirstName == "" && customer.LastName == "" {
				customer.FirstName = strings.TrimSpace(req.FirstName)
				customer.LastName = strings.TrimSpace(req.LastName)
			}
			return tx.UpdateCustomer(ctx, customer)
		}

		// random placeholder nobody knows; the account can only sign in through the provider or a reset
		hash, err := bcrypt.GenerateFromPassword([]byte(uuid.New().String()), s.bcryptCost)
		if err != nil {
			return err
		}
		customer = &models.Customer{
			Email:        email,
			PasswordHash: sql.NullString{String: string(hash), Valid: true},
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
			Status:       models.CustomerStatusActive,
			ProviderID:   sql.NullString{String: providerID, Valid: true},
		}
		created = true
		return tx.CreateCustomer(ctx, customer)
	})
	if err != nil {
		util.RecordError(span, err)
		if KindOf(err) == KindBusiness {
			util.LoginsTotal.WithLabelValues("deactivated").Inc()
		}
		return nil, s.fail("Federated login failed", err, zap.String("email", email))
	}

	if created {
		util.AccountsRegisteredTotal.WithLabelValues("federated").Inc()
		s.publishRegistered(ctx, customer, true)
	}

	resp, err := s.issue(customer)
	if err != nil {
		util.RecordError(span, err)
		return nil, s.fail("Federated login failed", err, zap.Int64("customer_id", customer.ID))
	}

	util.LoginsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Customer logged in",
		zap.Int64("customer_id", customer.ID),
		zap.String("provider", provider),
		zap.Bool("created", created))
	return resp, nil
}

// RequestPasswordReset stores a one-hour reset token and emails it.
// Unknown emails succeed silently; a failed send keeps the token so the customer can ask again.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	ctx, span := util.StartSpan(ctx, "AccountService.RequestPasswordReset")
	defer span.End()

	email = normalizeEmail(email)
	if email == "" {
		return validationError("Email is required")
	}

	var customer *models.Customer
	err := withTx(ctx, s.gateway, func(tx store.Transaction) error {
		var err error
		customer, err = tx.GetCustomerByEmail(ctx, email)
		if errors.Is(err, store.ErrNotFound) {
			customer = nil
			return nil
		}
		if err != nil {
			return err
		}
		if customer.IsGuest || customer.Status == models.CustomerStatusInactive {
			customer = nil
			return nil
		}

		customer.ResetToken = sql.NullString{String: uuid.New().String(), Valid: true}
		customer.ResetExpires = sql.NullTime{Time: s.now().Add(passwordResetTTL), Valid: true}
		return tx.UpdateCustomer(ctx, customer)
	})
	if err != nil {
		util.RecordError(span, err)
		return s.fail("Password reset request failed", err, zap.String("email", email))
	}

	if customer == nil {
		s.logger.Info("Password reset requested for unknown account", zap.String("email", email))
		return nil
	}

	if !s.notifier.SendPasswordResetEmail(ctx, customer.Email, customer.FullName(), customer.ResetToken.String) {
		s.logger.Warn("Password reset email not sent; token kept",
			zap.Int64("customer_id", customer.ID))
	}
	return nil
}

// ResetPassword sets a new password using a reset token
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx, span := util.StartSpan(ctx, "AccountService.ResetPassword")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return validationError("Token is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return unexpectedError("Failed to reset password", err)
	}

	var customer *models.Customer
	err = withTx(ctx, s.gateway, func(tx store.Transaction) error {
		var err error
		customer, err = tx.GetCustomerByResetToken(ctx, token)
		if errors.Is(err, store.ErrNotFound) {
			return businessError(CodeInvalidToken, invalidToken)
		}
		if err != nil {
			return err
		}
		if !customer.ResetExpires.Valid || s.now().After(customer.ResetExpires.Time) {
			return businessError(CodeInvalidToken, invalidToken)
		}

		customer.PasswordHash = sql.NullString{String: string(hash), Valid: true}
		customer.ResetToken = sql.NullString{}
		customer.ResetExpires = sql.NullTime{}
		// the reset link proves ownership of the mailbox
		if customer.Status == models.CustomerStatusPending {
			customer.Status = models.CustomerStatusActive
			customer.VerificationToken = sql.NullString{}
			customer.VerificationExpires = sql.NullTime{}
		}
		return tx.UpdateCustomer(ctx, customer)
	})
	if err != nil {
		util.RecordError(span, err)
		return s.fail("Password reset failed", err)
	}

	s.logger.Info("Password reset", zap.Int64("customer_id", customer.ID))
	s.notifier.SendPasswordChangedEmail(ctx, customer.Email, customer.FullName())
	return nil
}

// ChangePassword replaces the password of a signed-in customer
func (s *AccountService) ChangePassword(ctx context.Context, customerID int64, currentPassword, newPassword string) error {
	ctx, span := util.StartSpan(ctx, "AccountService.ChangePassword")
	defer span.End()

	if currentPassword == "" {
		return validationError("Current password is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	var customer *models.Customer
	err := withTx(ctx, s.gateway, func(tx store.Transaction) error {
		var err error
		customer, err = tx.GetCustomerByID(ctx, customerID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("Customer not found")
		}
		if err != nil {
			return err
		}
		if !customer.PasswordHash.Valid ||
			bcrypt.CompareHashAndPassword([]byte(customer.PasswordHash.String), []byte(currentPassword)) != nil {
			return businessError(CodeInvalidCredentials, "Current password is incorrect")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
		if err != nil {
			return err
		}
		customer.PasswordHash = sql.NullString{String: string(hash), Valid: true}
		return tx.UpdateCustomer(ctx, customer)
	})
	if err != nil {
		util.RecordError(span, err)
		return s.fail("Password change failed", err, zap.Int64("customer_id", customerID))
	}

	s.logger.Info("Password changed", zap.Int64("customer_id", customerID))
	s.notifier.SendPasswordChangedEmail(ctx, customer.Email, customer.FullName())
	return nil
}

func (s *AccountService) issue(customer *models.Customer) (*LoginResponse, error) {
	token, expiresAt, err := s.tokens.Issue(customer)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, ExpiresAt: expiresAt, Customer: customer}, nil
}

func (s *AccountService) publishRegistered(ctx context.Context, customer *models.Customer, federated bool) {
	if s.publisher == nil {
		return
	}

	ctx, cancel := detach(ctx, 5*time.Second)
	defer cancel()

	event := &models.CustomerRegisteredEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCustomerRegistered,
			Timestamp: time.Now(),
		},
		CustomerID: customer.ID,
		Email:      customer.Email,
		Federated:  federated,
	}
	if err := s.publisher.PublishCustomerRegistered(ctx, event); err != nil {
		s.logger.Error("Failed to publish CustomerRegistered event",
			zap.Int64("customer_id", customer.ID),
			zap.Error(err))
	}
}

func (s *AccountService) dummyPasswordHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.New().String()), s.bcryptCost)
	})
	return s.dummyHash
}

func (s *AccountService) fail(message string, err error, fields ...zap.Field) *Error {
	svcErr := asServiceError(err, message)
	if svcErr.Kind == KindUnexpected {
		s.logger.Error(message, append(fields, zap.Error(err))...)
	} else {
		s.logger.Warn(message, append(fields, zap.String("reason", svcErr.Message))...)
	}
	return svcErr
}

func validateCredentials(email, password string) error {
	if email == "" {
		return validationError("Email is required")
	}
	if !validEmail(email) {
		return validationError("Email is invalid")
	}
	return validatePassword(password)
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return validationError(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return validationError(fmt.Sprintf("Password cannot exceed %d bytes", maxPasswordBytes))
	}
	return nil
}
