package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillment-service/config"
	"fulfillment-service/internal/producer"
	"fulfillment-service/internal/repository"
	"fulfillment-service/internal/saga"
	"fulfillment-service/internal/service"
	transporthttp "fulfillment-service/internal/transport/http"
	"fulfillment-service/pkg/database"
	"fulfillment-service/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)
	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	repos := repository.New(db)

	var notifier saga.Notifier = saga.NopNotifier{}
	if len(cfg.KafkaBrokers) > 0 && cfg.StockAlertTopic != "" {
		alerts := producer.NewStockAlertProducer(cfg.KafkaBrokers, cfg.StockAlertTopic)
		defer alerts.Close()
		notifier = alerts
	} else {
		log.Warn("kafka is not configured, low stock alerts are disabled")
	}

	executor := saga.NewInProcessExecutor(repos.Sagas, log,
		saga.NewCreateReservationHandler(repos.Reservations),
		saga.NewValidateReferencesHandler(repos.Catalog),
		saga.NewAdjustStockHandler(repos, notifier, log),
		saga.NewRecordPurchaseHandler(repos.Purchases),
		saga.NewFinalizeReservationHandler(repos),
	)

	coordinator := saga.NewCoordinator(repos.Sagas, executor, log,
		saga.NewCancelReservationCompensator(repos.Reservations),
		saga.NewCancelPurchaseCompensator(repos.Purchases),
		saga.NewReverseStockAdjustmentCompensator(repos),
		saga.NewReinstateReservationCompensator(repos),
	)

	svc := service.NewFulfillmentService(repos, coordinator, log)

	r := transporthttp.Router(svc, log)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to run http server", zap.Error(err))
		}
	}()
	log.Info("fulfillment service started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down fulfillment service...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	log.Info("fulfillment service stopped gracefully")
}
