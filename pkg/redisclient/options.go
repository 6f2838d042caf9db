package redisclient

import "time"

type Option func(*RedisClient)

func ConnAttempts(attempts int) Option {
	return func(rc *RedisClient) {
		rc.connAttempts = attempts
	}
}

func ConnTimeout(timeout time.Duration) Option {
	return func(rc *RedisClient) {
		rc.connTimeout = timeout
	}
}
