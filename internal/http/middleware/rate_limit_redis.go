package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisWindowLimiter counts hits in fixed windows keyed by window index, so
// multiple instances share one budget.
type redisWindowLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisWindowLimiter(client redis.UniversalClient, prefix string) Limiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &redisWindowLimiter{client: client, prefix: prefix}
}

func (l *redisWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := time.Now()
	bucket := now.UnixNano() / int64(window)
	dataKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, dataKey)
	pipe.Expire(ctx, dataKey, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	hits := int(count.Val())
	if hits > limit {
		resetAt := time.Unix(0, (bucket+1)*int64(window))
		retry := resetAt.Sub(now)
		if retry <= 0 {
			retry = time.Second
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}
	return Decision{Allowed: true, Remaining: limit - hits}, nil
}
