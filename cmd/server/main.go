package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-service/config"
	"storefront-service/internal/api"
	"storefront-service/internal/broker"
	"storefront-service/internal/notify"
	"storefront-service/internal/receipt"
	"storefront-service/internal/redisclient"
	"storefront-service/internal/service"
	"storefront-service/internal/store"
	"storefront-service/internal/util"
	"storefront-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.AutoMigrate {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database schema applied")
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable; idempotency keys and guest locks disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		logger.Info("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)
	logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	var mailer notify.Mailer
	if cfg.Mail.PostmarkToken != "" {
		mailer = notify.NewPostmarkMailer(cfg.Mail.PostmarkToken, cfg.Mail.Sender)
	} else {
		logger.Warn("POSTMARK_SERVER_TOKEN not set; emails are only logged")
		mailer = notify.NewLogMailer()
	}
	notifier := notify.NewNotifier(mailer, cfg.Mail.BaseURL, cfg.Mail.Brand)

	receipts := service.NewReceiptDispatcher(db, receipt.NewGenerator(cfg.Mail.Brand, cfg.Mail.StoreAddress), notifier, cfg.Mail.Brand)
	if cfg.Receipt.Bucket != "" {
		archive, err := receipt.NewS3Archive(context.Background(), cfg.Receipt.Bucket, cfg.Receipt.S3Endpoint)
		if err != nil {
			logger.Warn("Receipt archive disabled", zap.Error(err))
		} else {
			receipts.WithArchive(archive)
			logger.Info("Receipt archive enabled", zap.String("bucket", cfg.Receipt.Bucket))
		}
	}

	asyncReceipts := cfg.Receipt.Delivery == config.DeliveryAsync
	orderService := service.NewOrderService(db, receipts, service.OrderOptions{
		AsyncReceipts:  asyncReceipts,
		IdempotencyTTL: cfg.Business.IdempotencyTTL,
		GuestLockTTL:   cfg.Business.GuestLockTTL,
	}).WithEvents(eventPublisher)
	if redisClient != nil {
		orderService.WithIdempotency(redisClient).WithLocker(redisClient)
	}

	tokens := service.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	accountService := service.NewAccountService(db, notifier, tokens).WithEvents(eventPublisher)
	addressService := service.NewAddressService(db)
	customerService := service.NewCustomerService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var receiptWorker *worker.ReceiptWorker
	if asyncReceipts {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		receiptWorker = worker.NewReceiptWorker(consumer, receipts, logger)
		go func() {
			if err := receiptWorker.Start(workerCtx); err != nil {
				logger.Error("Receipt worker error", zap.Error(err))
			}
		}()
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, addressService, accountService, customerService, tokens)
	handler.AddReadinessCheck("postgres", db.Ping)
	if redisClient != nil {
		handler.AddReadinessCheck("redis", redisClient.Ping)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if receiptWorker != nil {
		if err := receiptWorker.Stop(); err != nil {
			logger.Error("Failed to stop receipt worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
