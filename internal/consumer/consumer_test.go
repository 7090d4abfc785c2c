package consumer

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/quartostays/booking-engine/internal/clock"
	"github.com/quartostays/booking-engine/internal/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type publishedMessage struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

type fakeProducer struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, value []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedMessage{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func (p *fakeProducer) all() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.published...)
}

type fakeHandler struct {
	err   error
	calls int
}

func (h *fakeHandler) Handle(_ context.Context, _ domain.EventEnvelope) error {
	h.calls++
	return h.err
}

func testConsumer(t *testing.T, handler Handler, producer Producer) (*Consumer, *RetryScheduler) {
	t.Helper()
	scheduler := NewRetryScheduler(producer, zap.NewNop())
	cfg := Config{
		Brokers:    []string{"localhost:9092"},
		GroupID:    "test-group",
		Topic:      "hotel.snapshot",
		DLQTopic:   "hotel.snapshot.dlq",
		MaxRetries: 5,
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return New(cfg, handler, producer, scheduler, clock.NewFixed(now), zap.NewNop()), scheduler
}

func message(value []byte, retryCount int) *sarama.ConsumerMessage {
	msg := &sarama.ConsumerMessage{
		Topic: "hotel.snapshot",
		Key:   []byte("hotel-1"),
		Value: value,
	}
	if retryCount >= 0 {
		msg.Headers = append(msg.Headers, &sarama.RecordHeader{
			Key:   []byte(headerRetryCount),
			Value: []byte(strconv.Itoa(retryCount)),
		})
	}
	return msg
}

const validEnvelope = `{"event_id":7,"event_type":"room_inventory.changed","hotel_id":"hotel-1","payload":{}}`

func TestConsumer_Process(t *testing.T) {
	t.Parallel()

	t.Run("success acks without side effects", func(t *testing.T) {
		producer := &fakeProducer{}
		handler := &fakeHandler{}
		c, scheduler := testConsumer(t, handler, producer)

		require.NoError(t, c.process(context.Background(), message([]byte(validEnvelope), -1)))
		require.Equal(t, 1, handler.calls)
		require.Empty(t, producer.all())
		require.Zero(t, scheduler.Pending())
	})

	t.Run("unparseable message dead-letters with retry count zero", func(t *testing.T) {
		producer := &fakeProducer{}
		handler := &fakeHandler{}
		c, scheduler := testConsumer(t, handler, producer)

		require.NoError(t, c.process(context.Background(), message([]byte("not json"), -1)))
		require.Zero(t, handler.calls)
		require.Zero(t, scheduler.Pending())

		published := producer.all()
		require.Len(t, published, 1)
		require.Equal(t, "hotel.snapshot.dlq", published[0].topic)
		require.Equal(t, "0", published[0].headers[headerRetryCount])
		require.NotEmpty(t, published[0].headers[headerLastError])
	})

	t.Run("envelope without event type dead-letters immediately", func(t *testing.T) {
		producer := &fakeProducer{}
		c, _ := testConsumer(t, &fakeHandler{}, producer)

		require.NoError(t, c.process(context.Background(), message([]byte(`{"event_id":1}`), -1)))
		published := producer.all()
		require.Len(t, published, 1)
		require.Equal(t, "0", published[0].headers[headerRetryCount])
	})

	t.Run("handler failure schedules a delayed retry", func(t *testing.T) {
		producer := &fakeProducer{}
		handler := &fakeHandler{err: errors.New("search index down")}
		c, scheduler := testConsumer(t, handler, producer)

		require.NoError(t, c.process(context.Background(), message([]byte(validEnvelope), -1)))
		require.Empty(t, producer.all(), "no DLQ publish inside the retry budget")
		require.Equal(t, 1, scheduler.Pending())

		scheduler.mu.Lock()
		item := scheduler.queue[0]
		scheduler.mu.Unlock()
		require.Equal(t, "hotel.snapshot", item.topic)
		require.Equal(t, "1", item.headers[headerRetryCount])
		require.Equal(t, "search index down", item.headers[headerLastError])
	})

	t.Run("exhausted budget dead-letters with total failure count", func(t *testing.T) {
		producer := &fakeProducer{}
		handler := &fakeHandler{err: errors.New("still down")}
		c, scheduler := testConsumer(t, handler, producer)

		require.NoError(t, c.process(context.Background(), message([]byte(validEnvelope), 5)))
		require.Zero(t, scheduler.Pending())

		published := producer.all()
		require.Len(t, published, 1)
		require.Equal(t, "hotel.snapshot.dlq", published[0].topic)
		require.Equal(t, "6", published[0].headers[headerRetryCount])
		require.NotEmpty(t, published[0].headers[headerFailedAt])
	})

	t.Run("full ladder yields exactly one DLQ message", func(t *testing.T) {
		producer := &fakeProducer{}
		handler := &fakeHandler{err: errors.New("permanent failure")}
		c, scheduler := testConsumer(t, handler, producer)

		msg := message([]byte(validEnvelope), -1)
		for i := 0; i < 10; i++ {
			require.NoError(t, c.process(context.Background(), msg))
			if scheduler.Pending() == 0 {
				break
			}
			scheduler.mu.Lock()
			item := scheduler.queue[0]
			scheduler.queue = scheduler.queue[:0]
			scheduler.mu.Unlock()

			msg = &sarama.ConsumerMessage{Topic: item.topic, Key: []byte(item.key), Value: item.value}
			for k, v := range item.headers {
				msg.Headers = append(msg.Headers, &sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
			}
		}

		require.Equal(t, 6, handler.calls, "initial attempt plus five retries")
		published := producer.all()
		require.Len(t, published, 1)
		require.Equal(t, "hotel.snapshot.dlq", published[0].topic)
		require.Equal(t, "6", published[0].headers[headerRetryCount])
	})

	t.Run("failed DLQ publish surfaces so the message stays unacked", func(t *testing.T) {
		producer := &fakeProducer{err: errors.New("broker down")}
		c, _ := testConsumer(t, &fakeHandler{}, producer)

		err := c.process(context.Background(), message([]byte("not json"), -1))
		require.Error(t, err)
	})
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	require.Equal(t, 5*time.Second, backoff(1))
	require.Equal(t, 10*time.Second, backoff(2))
	require.Equal(t, 40*time.Second, backoff(4))
	require.Equal(t, 5*time.Minute, backoff(10), "capped")
	require.Equal(t, 5*time.Minute, backoff(63), "shift overflow capped")
}
