package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quartostays/booking-engine/internal/clock"
	"github.com/quartostays/booking-engine/internal/config"
	"github.com/quartostays/booking-engine/internal/consumer"
	"github.com/quartostays/booking-engine/internal/kafka"
	"github.com/quartostays/booking-engine/internal/projector"
	"github.com/quartostays/booking-engine/internal/search"
	"github.com/quartostays/booking-engine/internal/storage/postgres"
	"github.com/quartostays/booking-engine/migrations"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = redisClient.Close() }()

	clk := clock.NewSystem()
	snapshots := postgres.NewSnapshotRepository(pool)
	index := search.NewRedisIndex(redisClient)
	proj := projector.New(snapshots, index, clk, logger)

	scheduler := consumer.NewRetryScheduler(producer, logger)
	cons := consumer.New(consumer.Config{
		Brokers:    cfg.Brokers(),
		GroupID:    cfg.ConsumerGroup,
		Topic:      cfg.SnapshotTopic,
		DLQTopic:   cfg.DLQTopic(),
		MaxRetries: cfg.ConsumerMaxRetries,
	}, proj, producer, scheduler, clk, logger)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go scheduler.Run(stopCtx)

	if err := cons.Run(stopCtx); err != nil {
		logger.Fatal("consumer failed", zap.Error(err))
	}
	logger.Info("projector stopped")
}
