package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quartostays/booking-engine/internal/app"
	"github.com/quartostays/booking-engine/internal/clock"
	"github.com/quartostays/booking-engine/internal/config"
	"github.com/quartostays/booking-engine/internal/kafka"
	"github.com/quartostays/booking-engine/internal/notify"
	"github.com/quartostays/booking-engine/internal/outbox"
	"github.com/quartostays/booking-engine/internal/payment"
	"github.com/quartostays/booking-engine/internal/storage/postgres"
	transporthttp "github.com/quartostays/booking-engine/internal/transport/http"
	"github.com/quartostays/booking-engine/migrations"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := config.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	producer, err := kafka.NewProducer(cfg.Brokers())
	if err != nil {
		logger.Fatal("connect to kafka", zap.Error(err))
	}
	defer func() { _ = producer.Close() }()

	clk := clock.NewSystem()

	holdRepo := postgres.NewHoldRepository(pool)
	holdSvc := app.NewHoldService(holdRepo, clk, app.WithHoldTTL(cfg.HoldTTL))
	sweeper := app.NewSweeper(holdSvc, clk, logger, cfg.SweepInterval)

	notifier := notify.NewDispatcher(logger)
	bookingRepo := postgres.NewBookingRepository(pool)
	provider := payment.NewProvider(cfg.WebhookSecret)
	webhookSvc := app.NewWebhookService(bookingRepo, provider, notifier, clk, logger)

	outboxRepo := postgres.NewOutboxRepository(pool)
	dispatcher := outbox.NewDispatcher(outboxRepo, producer, clk, logger, cfg.SnapshotTopic, cfg.OutboxInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/holds", transporthttp.HandleHolds(holdSvc))
	mux.Handle("/holds/", transporthttp.HandleHoldByID(holdSvc))
	mux.Handle("/webhooks/payments", transporthttp.HandlePaymentWebhook(webhookSvc, logger))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.Origins(), mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweeper.Run(stopCtx)
	go dispatcher.Run(stopCtx)
	go notifier.Run(stopCtx)

	logger.Info("api listening", zap.String("port", cfg.Port))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}
