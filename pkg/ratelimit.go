package pkg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Errors
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// DistributedLimiter combines a local rate.Limiter with a Redis fixed-window counter shared
// by all replicas. Without a Redis client only the local limiter applies.
type DistributedLimiter struct {
	localLimiter *rate.Limiter
	redisClient  redis.UniversalClient
	key          string        // e.g: "ledger:api:rate"
	window       time.Duration // e.g: 1s
	globalLimit  int64         // requests per window across replicas
	logger       *zap.Logger
}

// NewDistributedLimiter creates a limiter; if replicaRate=0, it's unlimited.
func NewDistributedLimiter(redisClient redis.UniversalClient, key string, replicaRate, burst, globalRate int, window time.Duration, logger *zap.Logger) *DistributedLimiter {
	var local *rate.Limiter
	if replicaRate > 0 {
		local = rate.NewLimiter(rate.Limit(replicaRate), burst)
	}
	if window <= 0 {
		window = time.Second
	}
	return &DistributedLimiter{
		localLimiter: local,
		redisClient:  redisClient,
		key:          key,
		window:       window,
		globalLimit:  int64(globalRate),
		logger:       logger,
	}
}

// Allow checks if a token is available; uses Redis for the distributed count.
func (d *DistributedLimiter) Allow(ctx context.Context) bool {
	if d.localLimiter == nil {
		return true // Unlimited
	}

	// Local check first (fast path)
	if !d.localLimiter.Allow() {
		return false
	}
	if d.redisClient == nil || d.globalLimit <= 0 {
		return true
	}

	// Distributed check via Redis atomic increment on the current window
	windowKey := fmt.Sprintf("%s:%d", d.key, time.Now().UnixNano()/int64(d.window))
	pipe := d.redisClient.Pipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, 2*d.window)
	if _, err := pipe.Exec(ctx); err != nil {
		d.logger.Error("redis_rate_limit_error_falling_back_to_local", zap.Error(err))
		return true
	}

	if count := incr.Val(); count > d.globalLimit {
		d.logger.Warn("global_rate_limit_exceeded", zap.String("key", windowKey), zap.Int64("count", count))
		return false
	}
	return true
}
