package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/service"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// OrderService is the checkout workflow used by the handlers
type OrderService interface {
	PlaceGuestOrder(ctx context.Context, req *service.CheckoutRequest) (*service.PlaceOrderResponse, error)
	PlaceOrder(ctx context.Context, customerID int64, req *service.CheckoutRequest) (*service.PlaceOrderResponse, error)
	GetOrder(ctx context.Context, customerID, orderID int64) (*service.OrderDetails, error)
}

// AddressService is the address book used by the handlers
type AddressService interface {
	ListAddresses(ctx context.Context, customerID int64) ([]models.Address, error)
	AddAddress(ctx context.Context, customerID int64, addressType models.AddressType, in *service.AddressInput) (*models.Address, error)
	SetAddressAsDefault(ctx context.Context, customerID, addressID int64, addressType models.AddressType) error
	DeleteAddress(ctx context.Context, customerID, addressID int64) error
}

// AccountService is the account management used by the handlers
type AccountService interface {
	Register(ctx context.Context, req *service.RegisterRequest) (*models.Customer, error)
	VerifyEmail(ctx context.Context, token string) (*models.Customer, error)
	Login(ctx context.Context, req *service.LoginRequest) (*service.LoginResponse, error)
	FederatedLogin(ctx context.Context, req *service.FederatedLoginRequest) (*service.LoginResponse, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, customerID int64, currentPassword, newPassword string) error
}

// CustomerService loads customer profiles
type CustomerService interface {
	GetCustomer(ctx context.Context, customerID int64) (*models.Customer, error)
}

// TokenParser verifies access tokens
type TokenParser interface {
	Parse(token string) (int64, error)
}

// ReadinessCheck reports whether a dependency is reachable
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	orders    OrderService
	addresses AddressService
	accounts  AccountService
	customers CustomerService
	tokens    TokenParser
	checks    map[string]ReadinessCheck
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(orders OrderService, addresses AddressService, accounts AccountService,
	customers CustomerService, tokens TokenParser) *Handler {
	return &Handler{
		orders:    orders,
		addresses: addresses,
		accounts:  accounts,
		customers: customers,
		tokens:    tokens,
		checks:    make(map[string]ReadinessCheck),
		logger:    util.GetLogger(),
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout/guest", h.placeGuestOrder)
		v1.POST("/checkout/:customerId", h.authenticate(), h.requireCustomer(), h.placeOrder)

		auth := v1.Group("/auth")
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.POST("/federated", h.federatedLogin)
		auth.POST("/verify", h.verifyEmail)
		auth.POST("/password/forgot", h.forgotPassword)
		auth.POST("/password/reset", h.resetPassword)

		customers := v1.Group("/customers/:customerId", h.authenticate(), h.requireCustomer())
		customers.GET("", h.getCustomer)
		customers.GET("/orders/:orderId", h.getOrder)
		customers.GET("/addresses", h.listAddresses)
		customers.POST("/addresses", h.addAddress)
		customers.DELETE("/addresses/:addressId", h.deleteAddress)
		customers.PUT("/addresses/:addressId/default", h.setDefaultAddress)
		customers.POST("/password", h.changePassword)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck probes every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = "unavailable"
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// requestLogger writes one structured line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
