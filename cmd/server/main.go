package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-core/config"
	"marketplace-core/internal/events"
	"marketplace-core/internal/handler"
	"marketplace-core/internal/pub"
	"marketplace-core/internal/repository"
	"marketplace-core/internal/router"
	"marketplace-core/internal/sweep"
	"marketplace-core/internal/usecase"
	"marketplace-core/pkg/id"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting marketplace core",
		zap.String("environment", cfg.Env),
		zap.String("addr", cfg.HTTPAddr))

	dbPool, err := config.ConnectDB()
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
	})
	defer rdb.Close()

	ids, err := id.NewSnowflake(1)
	if err != nil {
		logger.Fatal("failed to initialize id generator", zap.Error(err))
	}

	producerCtx, stopProducer := context.WithCancel(context.Background())
	producer := events.NewLedgerProducer(cfg.KafkaBrokers, cfg.KafkaLedgerTopic, 1024, logger)
	producer.Start(producerCtx)

	notifier := pub.NewNotificationPublisher(rdb, cfg.NotificationChannel, logger)

	// Repositories
	walletRepo := repository.NewWalletRepo(dbPool)
	auctionRepo := repository.NewAuctionRepo(dbPool)
	escrowRepo := repository.NewEscrowRepo(dbPool, walletRepo)
	fractionalRepo := repository.NewFractionalRepo(dbPool, walletRepo)
	subscriptionRepo := repository.NewSubscriptionRepo(dbPool, walletRepo)

	// Usecases
	walletUC := usecase.NewWalletUsecase(walletRepo, rdb, producer, ids, logger)
	auctionUC := usecase.NewAuctionUsecase(auctionRepo, notifier, logger)
	escrowUC := usecase.NewEscrowUsecase(escrowRepo, walletRepo, notifier, rdb, producer, ids, cfg.PlatformFeePercent, logger)
	fractionalUC := usecase.NewFractionalUsecase(fractionalRepo, walletRepo, notifier, rdb, producer, ids, logger)
	subscriptionUC := usecase.NewSubscriptionUsecase(subscriptionRepo, walletRepo, notifier, rdb, producer, ids, cfg.Pricing, logger)

	// Handlers
	walletHandler := handler.NewWalletHandler(walletUC, logger)
	auctionHandler := handler.NewAuctionHandler(auctionUC, logger)
	escrowHandler := handler.NewEscrowHandler(escrowUC, logger)
	fractionalHandler := handler.NewFractionalHandler(fractionalUC, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionUC, logger)

	r := router.SetupRoutes(walletHandler, auctionHandler, escrowHandler, fractionalHandler, subscriptionHandler, logger)

	sweeper := sweep.NewSweeper(subscriptionUC, logger)
	if err := sweeper.Start(cfg.RenewalCron); err != nil {
		logger.Fatal("failed to schedule renewal sweep", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	sweeper.Stop()
	stopProducer()
	producer.WaitClosed()

	logger.Info("stopped")
}
