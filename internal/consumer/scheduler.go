package consumer

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RetryScheduler republishes failed messages after a backoff, from an
// in-process timer-indexed heap. This replaces the broker-specific
// delay-queue-with-TTL trick, so the retry mechanism works the same on any
// transport.
type RetryScheduler struct {
	producer Producer
	logger   *zap.Logger

	mu    sync.Mutex
	queue publishQueue
	wake  chan struct{}
}

type scheduledPublish struct {
	dueAt   time.Time
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

func NewRetryScheduler(producer Producer, logger *zap.Logger) *RetryScheduler {
	return &RetryScheduler{
		producer: producer,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// Schedule enqueues a republish at dueAt. Safe for concurrent use.
func (s *RetryScheduler) Schedule(dueAt time.Time, topic, key string, value []byte, headers map[string]string) {
	s.mu.Lock()
	heap.Push(&s.queue, scheduledPublish{
		dueAt:   dueAt,
		topic:   topic,
		key:     key,
		value:   value,
		headers: headers,
	})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending reports how many republishes are still queued.
func (s *RetryScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *RetryScheduler) Run(ctx context.Context) {
	s.logger.Info("retry scheduler started")
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		next, ok := s.peek()
		if !ok {
			select {
			case <-ctx.Done():
				s.logger.Info("retry scheduler stopped")
				return
			case <-s.wake:
			}
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(time.Until(next))

		select {
		case <-ctx.Done():
			s.logger.Info("retry scheduler stopped")
			return
		case <-s.wake:
		case <-timer.C:
			s.flushDue(ctx, time.Now())
		}
	}
}

func (s *RetryScheduler) peek() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return time.Time{}, false
	}
	return s.queue[0].dueAt, true
}

func (s *RetryScheduler) flushDue(ctx context.Context, now time.Time) {
	for {
		s.mu.Lock()
		if s.queue.Len() == 0 || s.queue[0].dueAt.After(now) {
			s.mu.Unlock()
			return
		}
		item := heap.Pop(&s.queue).(scheduledPublish)
		s.mu.Unlock()

		if err := s.producer.Publish(ctx, item.topic, item.key, item.value, item.headers); err != nil {
			s.logger.Error("retry republish failed, rescheduling",
				zap.String("topic", item.topic),
				zap.Error(err))
			s.Schedule(now.Add(10*time.Second), item.topic, item.key, item.value, item.headers)
			return
		}
	}
}

type publishQueue []scheduledPublish

func (q publishQueue) Len() int            { return len(q) }
func (q publishQueue) Less(i, j int) bool  { return q[i].dueAt.Before(q[j].dueAt) }
func (q publishQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *publishQueue) Push(x any)         { *q = append(*q, x.(scheduledPublish)) }
func (q *publishQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
