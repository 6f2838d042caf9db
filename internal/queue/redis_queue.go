package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	mainKey      = "ocr-jobs"
	delayedKey   = "ocr-jobs:delayed"
	completedKey = "ocr-jobs:completed"
	failedKey    = "ocr-jobs:failed"

	completedRetain = 100
	completedTTL    = 24 * time.Hour
	failedRetain    = 1000

	maxAttempts  = 3
	baseBackoff  = 2 * time.Second
)

// RedisQueue implements Queue as a Redis list (BLPOP/RPUSH) for ready
// jobs and a sorted set, scored by ready-at unix milli, for delayed
// redeliveries. A ticker-driven reaper (see Reaper) promotes delayed
// jobs whose score has elapsed back onto the main list.
type RedisQueue struct {
	client *redis.Client
}

func New(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) (int64, error) {
	if err := q.client.RPush(ctx, mainKey, payload).Err(); err != nil {
		return 0, fmt.Errorf("RedisQueue - Enqueue - q.client.RPush: %w", err)
	}

	n, err := q.client.LLen(ctx, mainKey).Result()
	if err != nil {
		return 0, fmt.Errorf("RedisQueue - Enqueue - q.client.LLen: %w", err)
	}

	return n, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, payload *[]byte) (bool, error) {
	res, err := q.client.BLPop(ctx, 5*time.Second, mainKey).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("RedisQueue - Dequeue - q.client.BLPop: %w", err)
	}

	// res[0] is the key name, res[1] the value.
	*payload = []byte(res[1])

	return true, nil
}

func (q *RedisQueue) Requeue(ctx context.Context, payload []byte, attempt int) error {
	if attempt+1 >= maxAttempts {
		return q.archive(ctx, failedKey, payload, failedRetain, 0)
	}

	delay := backoffFor(attempt)
	readyAt := float64(time.Now().Add(delay).UnixMilli())

	if err := q.client.ZAdd(ctx, delayedKey, redis.Z{Score: readyAt, Member: payload}).Err(); err != nil {
		return fmt.Errorf("RedisQueue - Requeue - q.client.ZAdd: %w", err)
	}

	return nil
}

func backoffFor(attempt int) time.Duration {
	d := baseBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (q *RedisQueue) MarkCompleted(ctx context.Context, payload []byte) error {
	return q.archive(ctx, completedKey, payload, completedRetain, completedTTL)
}

func (q *RedisQueue) archive(ctx context.Context, key string, payload []byte, retain int, ttl time.Duration) error {
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(retain-1))
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("RedisQueue - archive - pipe.Exec key=%s: %w", key, err)
	}

	return nil
}

func (q *RedisQueue) WaitingCount(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, mainKey).Result()
	if err != nil {
		return 0, fmt.Errorf("RedisQueue - WaitingCount - q.client.LLen: %w", err)
	}

	return n, nil
}

// PromoteDue moves delayed jobs whose ready-at has elapsed back onto
// the main list. Called periodically by Reaper.
func (q *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	nowMs := float64(time.Now().UnixMilli())

	due, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", nowMs),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("RedisQueue - PromoteDue - q.client.ZRangeByScore: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	pipe := q.client.TxPipeline()
	for _, member := range due {
		pipe.RPush(ctx, mainKey, member)
		pipe.ZRem(ctx, delayedKey, member)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("RedisQueue - PromoteDue - pipe.Exec: %w", err)
	}

	return len(due), nil
}
