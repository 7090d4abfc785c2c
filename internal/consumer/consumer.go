// Package consumer delivers snapshot events to the projector with bounded
// retries and poison-message isolation. Every message's fate (ack, delayed
// retry, dead-letter) is recorded before the original is acknowledged, so a
// message is never both in flight and duplicated into a side queue.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/quartostays/booking-engine/internal/clock"
	"github.com/quartostays/booking-engine/internal/domain"
	"github.com/quartostays/booking-engine/internal/metrics"
	"go.uber.org/zap"
)

const (
	headerRetryCount = "x-retry-count"
	headerLastError  = "x-last-error"
	headerFailedAt   = "x-failed-at"

	retryBackoffBase = 5 * time.Second
	retryBackoffCap  = 5 * time.Minute
	maxErrorHeader   = 500
)

type Handler interface {
	Handle(ctx context.Context, env domain.EventEnvelope) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key string, value []byte, headers map[string]string) error
}

type Config struct {
	Brokers    []string
	GroupID    string
	Topic      string
	DLQTopic   string
	MaxRetries int
}

type Consumer struct {
	cfg       Config
	handler   Handler
	producer  Producer
	scheduler *RetryScheduler
	clock     clock.Clock
	logger    *zap.Logger
}

func New(cfg Config, handler Handler, producer Producer, scheduler *RetryScheduler, clk clock.Clock, logger *zap.Logger) *Consumer {
	return &Consumer{
		cfg:       cfg,
		handler:   handler,
		producer:  producer,
		scheduler: scheduler,
		clock:     clk,
		logger:    logger,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, config)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() {
		if err := group.Close(); err != nil {
			c.logger.Error("close consumer group", zap.Error(err))
		}
	}()

	c.logger.Info("consumer started",
		zap.String("topic", c.cfg.Topic),
		zap.String("group", c.cfg.GroupID))

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, &groupHandler{c: c}); err != nil {
			c.logger.Error("consume loop error", zap.Error(err))
		}
		if ctx.Err() != nil {
			c.logger.Info("consumer stopped")
			return nil
		}
	}
}

type groupHandler struct {
	c *Consumer
}

func (h *groupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.c.process(session.Context(), msg); err != nil {
			// Fate could not be recorded; leave the message unacked so the
			// group redelivers it.
			h.c.logger.Error("failed to settle message",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return err
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// process decides a message's fate. It returns an error only when that fate
// could not be recorded (for example the DLQ publish itself failed).
func (c *Consumer) process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var env domain.EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		// Can never succeed; dead-letter immediately without touching the
		// retry budget.
		return c.deadLetter(ctx, msg, 0, err, "parse")
	}
	if env.EventType == "" {
		return c.deadLetter(ctx, msg, 0, fmt.Errorf("envelope missing event_type"), "parse")
	}

	handleErr := c.handler.Handle(ctx, env)
	if handleErr == nil {
		return nil
	}

	failures := c.retryCount(msg) + 1
	if failures > c.cfg.MaxRetries {
		return c.deadLetter(ctx, msg, failures, handleErr, "retries_exhausted")
	}

	c.scheduler.Schedule(
		c.clock.Now().Add(backoff(failures)),
		c.cfg.Topic,
		string(msg.Key),
		msg.Value,
		map[string]string{
			headerRetryCount: strconv.Itoa(failures),
			headerLastError:  truncate(handleErr.Error(), maxErrorHeader),
		},
	)
	metrics.ConsumerRetriesTotal.Inc()
	c.logger.Warn("handler failed, retry scheduled",
		zap.String("event_type", env.EventType),
		zap.Int64("event_id", env.EventID),
		zap.Int("failures", failures),
		zap.Error(handleErr))
	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, msg *sarama.ConsumerMessage, retryCount int, cause error, reason string) error {
	headers := map[string]string{
		headerRetryCount: strconv.Itoa(retryCount),
		headerLastError:  truncate(cause.Error(), maxErrorHeader),
		headerFailedAt:   c.clock.Now().Format(time.RFC3339),
	}
	if err := c.producer.Publish(ctx, c.cfg.DLQTopic, string(msg.Key), msg.Value, headers); err != nil {
		return fmt.Errorf("dead-letter publish: %w", err)
	}

	metrics.ConsumerDeadLetteredTotal.WithLabelValues(reason).Inc()
	c.logger.Error("message dead-lettered",
		zap.String("reason", reason),
		zap.Int("retry_count", retryCount),
		zap.Error(cause))
	return nil
}

func (c *Consumer) retryCount(msg *sarama.ConsumerMessage) int {
	for _, h := range msg.Headers {
		if string(h.Key) == headerRetryCount {
			if n, err := strconv.Atoi(string(h.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}

func backoff(failures int) time.Duration {
	d := retryBackoffBase << (failures - 1)
	if d > retryBackoffCap || d <= 0 {
		return retryBackoffCap
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
