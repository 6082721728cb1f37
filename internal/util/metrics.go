package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Checkout flows used as metric labels
const (
	FlowGuest    = "guest"
	FlowCustomer = "customer"
)

var (
	OrdersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders committed",
	}, []string{"flow"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of checkouts that failed, by failure kind",
	}, []string{"flow", "kind"})

	StockDecrementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_decrements_total",
		Help: "Total number of product stock decrements committed by checkout",
	})

	CheckoutLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of the transactional part of checkout",
		Buckets: prometheus.DefBuckets,
	}, []string{"flow"})

	ReceiptsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receipts_sent_total",
		Help: "Total number of receipt emails sent",
	})

	ReceiptsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receipts_failed_total",
		Help: "Total number of receipt deliveries that failed, by stage",
	}, []string{"stage"})

	AccountsRegisteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounts_registered_total",
		Help: "Total number of accounts created",
	}, []string{"source"})

	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logins_total",
		Help: "Total number of login attempts, by result",
	}, []string{"result"})

	EmailsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emails_failed_total",
		Help: "Total number of emails the mailer could not send",
	}, []string{"template"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
