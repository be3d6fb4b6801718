package suggestions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultQueueKey = "suggestion_jobs"

// RedisQueue is a queueClient backed by a Redis list, so the suggestions
// worker can run as its own process.
type RedisQueue struct {
	redis *redis.Client
	key   string
}

// NewRedisQueue creates a Redis-backed queue. An empty key uses the
// default list name.
func NewRedisQueue(redisClient *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = defaultQueueKey
	}
	return &RedisQueue{redis: redisClient, key: key}
}

// Send pushes a payload onto the queue.
func (q *RedisQueue) Send(ctx context.Context, body string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := q.redis.LPush(ctx, q.key, body).Err(); err != nil {
		return fmt.Errorf("suggestions: enqueue to redis: %w", err)
	}
	return nil
}

// Receive pops one message, blocking up to waitSeconds. The batch size
// is capped at one; Redis BRPOP yields single elements.
func (q *RedisQueue) Receive(ctx context.Context, _ int, waitSeconds int) ([]queueMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := time.Duration(waitSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Second
	}

	res, err := q.redis.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("suggestions: receive from redis: %w", err)
	}
	if len(res) < 2 {
		return nil, nil
	}

	return []queueMessage{{
		ID:            uuid.NewString(),
		Body:          res[1],
		ReceiptHandle: uuid.NewString(),
	}}, nil
}

// Delete is a no-op: BRPOP already removed the element.
func (q *RedisQueue) Delete(_ context.Context, _ string) error {
	return nil
}
