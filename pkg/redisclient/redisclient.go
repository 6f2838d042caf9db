package redisclient

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	_defaultConnAttempts = 10
	_defaultConnTimeout  = time.Second
)

// RedisClient wraps a single redis.Client shared by the cache, durable
// queue and event bus packages. A single connection pool backs all
// three roles, matching the single REDIS_URL the gateway is configured
// with.
type RedisClient struct {
	connAttempts int
	connTimeout  time.Duration

	Client *redis.Client
}

func New(ctx context.Context, url string, opts ...Option) (*RedisClient, error) {
	rc := &RedisClient{
		connAttempts: _defaultConnAttempts,
		connTimeout:  _defaultConnTimeout,
	}

	for _, opt := range opts {
		opt(rc)
	}

	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("RedisClient - New - redis.ParseURL: %w", err)
	}

	rc.Client = redis.NewClient(options)

	for rc.connAttempts > 0 {
		err = rc.Client.Ping(ctx).Err()
		if err == nil {
			break
		}

		log.Printf("redis is trying to connect, attempts left: %d", rc.connAttempts)

		time.Sleep(rc.connTimeout)

		rc.connAttempts--
	}

	if err != nil {
		return nil, fmt.Errorf("RedisClient - New - connAttempts == 0: %w", err)
	}

	return rc, nil
}

func (rc *RedisClient) Close() error {
	return rc.Client.Close()
}
