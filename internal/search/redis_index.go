package search

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const docKeyPrefix = "search:hotel:"

// RedisIndex writes denormalized hotel documents into redis hashes, the
// structure the search service queries. A circuit breaker sheds calls while
// the index is down so a broken index never stalls the consumer for long.
type RedisIndex struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{
		client: client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "search-index",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (i *RedisIndex) Upsert(ctx context.Context, documentID string, fields map[string]any) error {
	_, err := i.breaker.Execute(func() (any, error) {
		if err := i.client.HSet(ctx, docKeyPrefix+documentID, fields).Err(); err != nil {
			return nil, fmt.Errorf("upsert document %s: %w", documentID, err)
		}
		return nil, nil
	})
	return err
}
