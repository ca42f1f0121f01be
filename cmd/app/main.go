package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"homestay/internal/booking"
	"homestay/internal/config"
	"homestay/internal/db"
	"homestay/internal/gateway"
	"homestay/internal/idempotency"
	"homestay/internal/logger"
	"homestay/internal/notify"
	"homestay/internal/payment"
	"homestay/internal/server"
	"homestay/internal/wallet"
)

// @title Homestay Payments API
// @version 1.0
// @description Wallet ledger and payment settlement for the homestay booking platform.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()
	logger.Info("Starting homestay payments service")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, "migrations"); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}
	logger.Info("Redis connected")

	notifier := notify.NewRedisPublisher(rdb)
	guard := idempotency.New(rdb)

	momo := gateway.NewMoMo(gateway.MoMoConfig{
		Endpoint:    cfg.MomoEndpoint,
		PartnerCode: cfg.MomoPartnerCode,
		AccessKey:   cfg.MomoAccessKey,
		SecretKey:   cfg.MomoSecretKey,
		IPNURL:      cfg.MomoIPNURL,
		ReturnURL:   cfg.MomoReturnURL,
	})
	vnpay := gateway.NewVNPay(gateway.VNPayConfig{
		Endpoint:  cfg.VNPayEndpoint,
		TmnCode:   cfg.VNPayTmnCode,
		Secret:    cfg.VNPaySecret,
		ReturnURL: cfg.VNPayReturnURL,
	})

	walletService := wallet.NewService(wallet.NewRepository(database))
	bookingService := booking.NewService(
		booking.NewRepository(database),
		walletService,
		notifier,
		cfg.CommissionPercent,
		cfg.PlatformUserID,
	)
	paymentService := payment.NewService(walletService, guard, bookingService, notifier, momo, vnpay)

	srv := server.New(database, cfg, walletService, bookingService, paymentService)

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
