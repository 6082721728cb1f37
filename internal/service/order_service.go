package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	placeOrderFailed  = "An unexpected error occurred while placing the order"
	postCommitTimeout = 30 * time.Second
	maxExternalIDLen  = 64
)

// idempotencyClaimTTL bounds how long a crashed checkout blocks its key
const idempotencyClaimTTL = 2 * time.Minute

// OrderOptions tunes the checkout workflow
type OrderOptions struct {
	// AsyncReceipts leaves receipt delivery to the OrderPlaced consumer
	AsyncReceipts  bool
	IdempotencyTTL time.Duration
	GuestLockTTL   time.Duration
}

// OrderService places and reads orders
type OrderService struct {
	gateway     store.Gateway
	receipts    *ReceiptDispatcher
	publisher   EventPublisher
	idempotency IdempotencyStore
	locker      Locker
	opts        OrderOptions
	logger      *zap.Logger
	now         func() time.Time
}

// NewOrderService creates a new order service; receipts may be nil to skip receipt delivery
func NewOrderService(gateway store.Gateway, receipts *ReceiptDispatcher, opts OrderOptions) *OrderService {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.GuestLockTTL <= 0 {
		opts.GuestLockTTL = 10 * time.Second
	}
	return &OrderService{
		gateway:  gateway,
		receipts: receipts,
		opts:     opts,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// WithEvents publishes OrderPlaced after every committed checkout
func (s *OrderService) WithEvents(publisher EventPublisher) *OrderService {
	s.publisher = publisher
	return s
}

// WithIdempotency enables replay of checkouts carrying an idempotency key
func (s *OrderService) WithIdempotency(idempotency IdempotencyStore) *OrderService {
	s.idempotency = idempotency
	return s
}

// WithLocker serialises concurrent guest checkouts for the same email
func (s *OrderService) WithLocker(locker Locker) *OrderService {
	s.locker = locker
	return s
}

// CheckoutRequest is the checkout model shared by guest and customer checkout
type CheckoutRequest struct {
	Email                 string          `json:"email"`
	Items                 []LineItem      `json:"items"`
	Shipping              *AddressInput   `json:"shipping,omitempty"`
	Billing               *AddressInput   `json:"billing,omitempty"`
	BillingSameAsShipping bool            `json:"billing_same_as_shipping"`
	ShippingAddressID     int64           `json:"shipping_address_id,omitempty"`
	BillingAddressID      int64           `json:"billing_address_id,omitempty"`
	Note                  string          `json:"note,omitempty"`
	TotalPrice            decimal.Decimal `json:"total_price"`
	ExternalOrderID       string          `json:"external_order_id,omitempty"`
	IdempotencyKey        string          `json:"-"`
}

// PlaceOrderResponse is returned after a checkout commits
type PlaceOrderResponse struct {
	OrderID         int64  `json:"order_id"`
	ExternalOrderID string `json:"external_order_id"`
	Status          string `json:"status"`
}

// OrderDetails is an order with its lines
type OrderDetails struct {
	Order *models.Order      `json:"order"`
	Items []models.OrderItem `json:"items"`
}

type placedOrder struct {
	order    *models.Order
	customer *models.Customer
	items    []models.OrderItem
}

// PlaceGuestOrder places an order for a guest identified by email
func (s *OrderService) PlaceGuestOrder(ctx context.Context, req *CheckoutRequest) (*PlaceOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceGuestOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.WithLabelValues(util.FlowGuest).Observe(time.Since(start).Seconds())
	}()

	email := normalizeEmail(req.Email)
	if err := validateCheckout(req, email, true); err != nil {
		return nil, s.fail(util.FlowGuest, err, zap.String("email", email))
	}

	replayKey := ""
	if req.IdempotencyKey != "" {
		key := fmt.Sprintf("guest:%s:%s", email, req.IdempotencyKey)
		resp, reserved, err := s.claim(ctx, key)
		if err != nil {
			return nil, s.fail(util.FlowGuest, err, zap.String("email", email))
		}
		if resp != nil {
			return resp, nil
		}
		if reserved {
			replayKey = key
		}
	}

	release := s.lockGuest(ctx, email)
	defer release()

	var placed *placedOrder
	err := withTx(ctx, s.gateway, func(tx store.Transaction) error {
		customer, err := getOrCreateGuestCustomer(ctx, tx, email)
		if err != nil {
			return err
		}

		shipping, billing, err := resolveGuestAddresses(ctx, tx, customer.ID, req)
		if err != nil {
			return err
		}

		placed, err = s.createOrder(ctx, tx, customer, shipping, billing, req, email)
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		s.unclaim(ctx, replayKey)
		return nil, s.fail(util.FlowGuest, err, zap.String("email", email))
	}

	s.afterCommit(ctx, placed, util.FlowGuest, replayKey)
	return responseFor(placed.order), nil
}

// PlaceOrder places an order for an existing customer
func (s *OrderService) PlaceOrder(ctx context.Context, customerID int64, req *CheckoutRequest) (*PlaceOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.WithLabelValues(util.FlowCustomer).Observe(time.Since(start).Seconds())
	}()

	if err := validateCheckout(req, "", false); err != nil {
		return nil, s.fail(util.FlowCustomer, err, zap.Int64("customer_id", customerID))
	}

	replayKey := ""
	if req.IdempotencyKey != "" {
		key := fmt.Sprintf("customer:%d:%s", customerID, req.IdempotencyKey)
		resp, reserved, err := s.claim(ctx, key)
		if err != nil {
			return nil, s.fail(util.FlowCustomer, err, zap.Int64("customer_id", customerID))
		}
		if resp != nil {
			return resp, nil
		}
		if reserved {
			replayKey = key
		}
	}

	var placed *placedOrder
	err := withTx(ctx, s.gateway, func(tx store.Transaction) error {
		customer, err := tx.GetCustomerByID(ctx, customerID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("Customer not found")
		}
		if err != nil {
			return err
		}
		if customer.Status == models.CustomerStatusInactive {
			return businessError(CodeDeactivated, "Account is deactivated")
		}

		shipping, billing, err := resolveCustomerAddresses(ctx, tx, customer.ID, req)
		if err != nil {
			return err
		}

		placed, err = s.createOrder(ctx, tx, customer, shipping, billing, req, "")
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		s.unclaim(ctx, replayKey)
		return nil, s.fail(util.FlowCustomer, err, zap.Int64("customer_id", customerID))
	}

	s.afterCommit(ctx, placed, util.FlowCustomer, replayKey)
	return responseFor(placed.order), nil
}

// GetOrder retrieves an order owned by customerID
func (s *OrderService) GetOrder(ctx context.Context, customerID, orderID int64) (*OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.gateway.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && order.CustomerID != customerID) {
		return nil, notFoundError("Order not found")
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, unexpectedError("Failed to load order", err)
	}

	items, err := s.gateway.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		util.RecordError(span, err)
		return nil, unexpectedError("Failed to load order", err)
	}

	return &OrderDetails{Order: order, Items: items}, nil
}

func validateCheckout(req *CheckoutRequest, email string, guest bool) error {
	if req == nil {
		return validationError("Checkout is required")
	}

	if guest {
		if email == "" {
			return validationError("Email is required")
		}
		if !validEmail(email) {
			return validationError("Email is invalid")
		}
	}

	if len(req.Items) == 0 {
		return validationError("At least one item is required")
	}
	for _, item := range req.Items {
		if item.ProductID <= 0 {
			return validationError("Item product ID is required")
		}
		if item.Quantity <= 0 {
			return validationError(fmt.Sprintf("Quantity for product ID %d must be greater than zero", item.ProductID))
		}
		if item.Price.IsNegative() {
			return validationError(fmt.Sprintf("Price for product ID %d cannot be negative", item.ProductID))
		}
	}

	hasShipping := !req.Shipping.empty() || (!guest && req.ShippingAddressID > 0)
	if !hasShipping {
		return validationError("Shipping address is required")
	}

	if !req.BillingSameAsShipping {
		hasBilling := !req.Billing.empty() || (!guest && req.BillingAddressID > 0)
		if !hasBilling {
			return validationError("Billing address is required when different from shipping")
		}
	}

	if req.TotalPrice.IsNegative() {
		return validationError("Total price cannot be negative")
	}
	if len(req.ExternalOrderID) > maxExternalIDLen {
		return validationError(fmt.Sprintf("External order ID cannot exceed %d characters", maxExternalIDLen))
	}
	return nil
}

// resolveGuestAddresses converges a guest on one Both address, or one Shipping and one Billing address
func resolveGuestAddresses(ctx context.Context, repo store.Repository, customerID int64,
	req *CheckoutRequest) (*models.Address, *models.Address, error) {
	if req.BillingSameAsShipping {
		both, err := upsertAddressByType(ctx, repo, customerID, req.Shipping, models.AddressTypeBoth)
		if err != nil {
			return nil, nil, err
		}
		return both, both, nil
	}

	if req.Billing.empty() {
		return nil, nil, validationError("Billing address is required when different from shipping")
	}

	shipping, err := upsertAddressByType(ctx, repo, customerID, req.Shipping, models.AddressTypeShipping)
	if err != nil {
		return nil, nil, err
	}
	billing, err := upsertAddressByType(ctx, repo, customerID, req.Billing, models.AddressTypeBilling)
	if err != nil {
		return nil, nil, err
	}
	return shipping, billing, nil
}

// resolveCustomerAddresses uses saved addresses by id; inline addresses update the customer's
// current address of the type in place, so repeated checkouts never pile up rows.
func resolveCustomerAddresses(ctx context.Context, repo store.Repository, customerID int64,
	req *CheckoutRequest) (*models.Address, *models.Address, error) {
	var shipping *models.Address
	var err error
	if req.ShippingAddressID > 0 {
		shipping, err = ownedAddress(ctx, repo, req.ShippingAddressID, customerID)
	} else {
		shipping, err = upsertAddressByType(ctx, repo, customerID, req.Shipping, models.AddressTypeShipping)
	}
	if err != nil {
		return nil, nil, err
	}

	var billing *models.Address
	switch {
	case req.BillingAddressID > 0:
		billing, err = ownedAddress(ctx, repo, req.BillingAddressID, customerID)
	case req.BillingSameAsShipping:
		if shipping.Type == models.AddressTypeBoth {
			return shipping, shipping, nil
		}
		billing, err = upsertAddressByType(ctx, repo, customerID, inputFrom(shipping), models.AddressTypeBilling)
	case !req.Billing.empty():
		billing, err = upsertAddressByType(ctx, repo, customerID, req.Billing, models.AddressTypeBilling)
	default:
		return nil, nil, validationError("Billing address is required when different from shipping")
	}
	if err != nil {
		return nil, nil, err
	}
	return shipping, billing, nil
}

// createOrder validates stock for every line, writes the order, then decrements stock line by line
func (s *OrderService) createOrder(ctx context.Context, tx store.Transaction, customer *models.Customer,
	shipping, billing *models.Address, req *CheckoutRequest, guestEmail string) (*placedOrder, error) {
	products, err := reserveStock(ctx, tx, req.Items)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		CustomerID:        customer.ID,
		OrderDate:         now,
		Status:            models.OrderStatusPending,
		TotalAmount:       req.TotalPrice,
		Note:              strings.TrimSpace(req.Note),
		BillingAddressID:  billing.ID,
		ShippingAddressID: shipping.ID,
		ExternalOrderID:   strings.TrimSpace(req.ExternalOrderID),
	}
	if order.ExternalOrderID == "" {
		order.ExternalOrderID = newExternalOrderID(now)
	}
	if guestEmail != "" {
		order.GuestEmail = sql.NullString{String: guestEmail, Valid: true}
	}

	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	items, err := commitStock(ctx, tx, order.ID, req.Items, products)
	if err != nil {
		return nil, err
	}

	return &placedOrder{order: order, customer: customer, items: items}, nil
}

// afterCommit runs the best-effort side effects of a committed checkout; nothing here can fail the order
func (s *OrderService) afterCommit(ctx context.Context, placed *placedOrder, flow, replayKey string) {
	order := placed.order
	util.OrdersPlacedTotal.WithLabelValues(flow).Inc()
	s.logger.Info("Order placed",
		zap.String("flow", flow),
		zap.Int64("order_id", order.ID),
		zap.String("external_order_id", order.ExternalOrderID),
		zap.Int64("customer_id", placed.customer.ID),
		zap.Int("items", len(placed.items)))

	ctx, cancel := detach(ctx, postCommitTimeout)
	defer cancel()

	if replayKey != "" && s.idempotency != nil {
		if err := s.idempotency.SetIdempotencyKey(ctx, replayKey, order.ID, s.opts.IdempotencyTTL); err != nil {
			s.logger.Warn("Failed to record idempotency key",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
	}

	async := s.opts.AsyncReceipts && s.publisher != nil
	if s.publisher != nil {
		if err := s.publisher.PublishOrderPlaced(ctx, orderPlacedEvent(placed, async)); err != nil {
			s.logger.Error("Failed to publish OrderPlaced event",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
			async = false
		}
	}

	if async || s.receipts == nil {
		return
	}
	if err := s.receipts.Dispatch(ctx, order.ID); err != nil {
		s.logger.Error("Receipt delivery failed; order remains placed",
			zap.Int64("order_id", order.ID),
			zap.Int64("customer_id", placed.customer.ID),
			zap.Error(err))
	}
}

// claim reserves key for this checkout. A key that already produced an order returns that order;
// a key whose checkout is still running is rejected. Checkout proceeds unguarded when the store is down.
func (s *OrderService) claim(ctx context.Context, key string) (*PlaceOrderResponse, bool, error) {
	if s.idempotency == nil {
		return nil, false, nil
	}

	orderID, reserved, err := s.idempotency.ReserveIdempotencyKey(ctx, key, idempotencyClaimTTL)
	if err != nil {
		s.logger.Warn("Idempotency reservation failed; proceeding without it",
			zap.String("idempotency_key", key),
			zap.Error(err))
		return nil, false, nil
	}
	if reserved {
		return nil, true, nil
	}
	if orderID == 0 {
		return nil, false, businessError(CodeCheckoutInProgress,
			"A checkout with this idempotency key is already in progress")
	}

	s.logger.Info("Duplicate checkout request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", orderID))

	order, err := s.gateway.GetOrderByID(ctx, orderID)
	if err != nil {
		return &PlaceOrderResponse{OrderID: orderID, Status: models.OrderStatusPending}, false, nil
	}
	return responseFor(order), false, nil
}

// unclaim frees the reservation of a checkout that did not commit so the client can retry
func (s *OrderService) unclaim(ctx context.Context, key string) {
	if key == "" {
		return
	}

	ctx, cancel := detach(ctx, 5*time.Second)
	defer cancel()
	if err := s.idempotency.ReleaseIdempotencyKey(ctx, key); err != nil {
		s.logger.Warn("Failed to release idempotency key",
			zap.String("idempotency_key", key),
			zap.Error(err))
	}
}

// lockGuest serialises checkouts for one guest email; the unique email index still backs it up
func (s *OrderService) lockGuest(ctx context.Context, email string) func() {
	if s.locker == nil {
		return func() {}
	}

	release, acquired, err := s.locker.AcquireLock(ctx, "guest:"+email, s.opts.GuestLockTTL, s.opts.GuestLockTTL)
	if err != nil || !acquired {
		s.logger.Warn("Proceeding without guest checkout lock",
			zap.String("email", email),
			zap.Bool("acquired", acquired),
			zap.Error(err))
	}
	return release
}

func (s *OrderService) fail(flow string, err error, fields ...zap.Field) *Error {
	svcErr := asServiceError(err, placeOrderFailed)
	util.OrdersFailedTotal.WithLabelValues(flow, svcErr.Kind.String()).Inc()

	fields = append(fields, zap.String("flow", flow))
	if svcErr.Kind == KindUnexpected {
		s.logger.Error("Checkout failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Warn("Checkout rejected", append(fields, zap.String("reason", svcErr.Message))...)
	}
	return svcErr
}

func orderPlacedEvent(placed *placedOrder, sendReceipt bool) *models.OrderPlacedEvent {
	items := make([]models.OrderItemData, 0, len(placed.items))
	for _, item := range placed.items {
		items = append(items, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	email := placed.customer.Email
	if placed.order.GuestEmail.Valid {
		email = placed.order.GuestEmail.String
	}

	return &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:         placed.order.ID,
		ExternalOrderID: placed.order.ExternalOrderID,
		CustomerID:      placed.customer.ID,
		Email:           email,
		Guest:           placed.order.GuestEmail.Valid,
		TotalAmount:     placed.order.TotalAmount,
		Items:           items,
		SendReceipt:     sendReceipt,
	}
}

func responseFor(order *models.Order) *PlaceOrderResponse {
	return &PlaceOrderResponse{
		OrderID:         order.ID,
		ExternalOrderID: order.ExternalOrderID,
		Status:          order.Status,
	}
}

// newExternalOrderID formats ORD-<yyyymmdd>-<8 hex>
func newExternalOrderID(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(fmt.Sprintf("%x", id[:4])))
}
