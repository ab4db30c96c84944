package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-settlement/internal/client"
	"marketplace-settlement/internal/commission"
	"marketplace-settlement/internal/config"
	"marketplace-settlement/internal/logging"
	"marketplace-settlement/internal/repository"
	"marketplace-settlement/internal/server"
	"marketplace-settlement/internal/service"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	logger = logger.With("env", cfg.Environment.Name)
	ctx := logging.IntoContext(context.Background(), logger)

	calculator, err := commission.NewCalculator(cfg.Commission.Rate, cfg.Commission.MinorUnits)
	if err != nil {
		logger.Error("invalid commission config", "error", err)
		os.Exit(1)
	}

	db, err := client.InitDBClient(ctx, &cfg.Database)
	if err != nil {
		logger.Error("database init failed", "error", err)
		os.Exit(1)
	}

	paystackClient := client.NewPaystackClient(&cfg.Paystack)
	emailClient := client.NewEmailClient(&cfg.Email)
	fileStore := client.NewFileStore(&cfg.Storage)
	publisher := client.NewEventPublisher(&cfg.Kafka)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close event publisher", "error", err)
		}
	}()

	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	splitRepo := repository.NewSplitRepository(db)
	payoutProfileRepo := repository.NewPayoutProfileRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	downloadTokenRepo := repository.NewDownloadTokenRepository(db)
	exchangeRateRepo := repository.NewExchangeRateRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)

	settlementService := service.NewSettlementService(
		paystackClient, publisher,
		orderRepo,
		productRepo,
		splitRepo,
		payoutProfileRepo,
		notificationRepo,
		cfg.Commission.MinorUnits,
	)
	downloadService := service.NewDownloadService(
		fileStore,
		orderRepo,
		productRepo,
		downloadTokenRepo,
		service.DownloadOptions{
			BaseURL:  cfg.BaseURL,
			TTL:      cfg.Download.TokenTTL,
			GuestTTL: cfg.Download.GuestTokenTTL,
		},
	)
	fulfillmentService := service.NewFulfillmentService(
		db, emailClient, publisher, downloadService,
		orderRepo,
		productRepo,
		profileRepo,
		notificationRepo,
		cfg.AppURL, cfg.Commission.MinorUnits,
	)
	paymentService := service.NewPaymentService(
		db, paystackClient, publisher, calculator, settlementService, fulfillmentService,
		productRepo,
		orderRepo,
		exchangeRateRepo,
		profileRepo,
		webhookEventRepo,
		notificationRepo,
		service.PaymentOptions{
			Currency:    cfg.Paystack.Currency,
			CallbackURL: cfg.CallbackURL(),
			MinorUnits:  cfg.Commission.MinorUnits,
		},
	)
	orderService := service.NewOrderService(
		db, emailClient, publisher,
		orderRepo,
		productRepo,
		profileRepo,
		notificationRepo,
		cfg.AppURL,
	)

	srv := server.NewServer(logger, []byte(cfg.Auth.JWTSecret), server.Services{
		Payment:      paymentService,
		Settlement:   settlementService,
		Fulfillment:  fulfillmentService,
		Download:     downloadService,
		Order:        orderService,
		Payout:       service.NewPayoutService(paystackClient, settlementService, payoutProfileRepo, cfg.Paystack.Currency),
		Notification: service.NewNotificationService(notificationRepo),
	})

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	logger.Info("starting HTTP server", "addr", serverAddr, "commission_rate", calculator.Rate.String())
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	logger.Info("signal received, starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
