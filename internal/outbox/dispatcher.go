// Package outbox publishes domain events written alongside their domain
// mutation. One dispatcher fans pending rows out to the broker, which
// replaces the source system's dual best-effort emitters: an event either
// committed with its mutation or does not exist.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quartostays/booking-engine/internal/clock"
	"github.com/quartostays/booking-engine/internal/domain"
	"github.com/quartostays/booking-engine/internal/metrics"
	"go.uber.org/zap"
)

// Row is one persisted outbox event awaiting publication.
type Row struct {
	ID        int64
	EventType string
	HotelID   string
	Payload   json.RawMessage
	CreatedAt time.Time
	Attempts  int
}

type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListPending(ctx context.Context, limit int) ([]Row, error)
	MarkPublished(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key string, value []byte, headers map[string]string) error
}

type Dispatcher struct {
	repo      Repository
	producer  Producer
	clock     clock.Clock
	logger    *zap.Logger
	topic     string
	interval  time.Duration
	batchSize int
}

func NewDispatcher(repo Repository, producer Producer, clk clock.Clock, logger *zap.Logger, topic string, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		producer:  producer,
		clock:     clk,
		logger:    logger,
		topic:     topic,
		interval:  interval,
		batchSize: 100,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("outbox dispatcher started",
		zap.String("topic", d.topic),
		zap.Duration("interval", d.interval))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.DispatchBatch(ctx); err != nil {
				d.logger.Error("outbox dispatch failed", zap.Error(err))
			}
		}
	}
}

// DispatchBatch publishes one batch of pending rows. Rows are claimed with
// row locks inside the transaction, so concurrent dispatchers divide the
// backlog instead of duplicating it.
func (d *Dispatcher) DispatchBatch(ctx context.Context) error {
	return d.repo.WithTx(ctx, func(txCtx context.Context) error {
		pending, err := d.repo.ListPending(txCtx, d.batchSize)
		if err != nil {
			return err
		}

		for _, row := range pending {
			if err := d.publish(txCtx, row); err != nil {
				metrics.OutboxPublishFailures.Inc()
				d.logger.Error("outbox publish failed",
					zap.Int64("event_id", row.ID),
					zap.String("event_type", row.EventType),
					zap.Error(err))
				if err := d.repo.MarkFailed(txCtx, row.ID, err.Error()); err != nil {
					return err
				}
				continue
			}
			if err := d.repo.MarkPublished(txCtx, row.ID, d.clock.Now()); err != nil {
				return err
			}
			metrics.OutboxPublishedTotal.Inc()
		}
		return nil
	})
}

func (d *Dispatcher) publish(ctx context.Context, row Row) error {
	env := domain.EventEnvelope{
		EventID:    row.ID,
		EventType:  row.EventType,
		HotelID:    row.HotelID,
		Payload:    row.Payload,
		OccurredAt: row.CreatedAt,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	// Key by hotel id so events for one hotel stay ordered per partition.
	return d.producer.Publish(ctx, d.topic, row.HotelID, value, nil)
}
