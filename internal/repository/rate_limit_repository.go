package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitRepository keeps fixed window request counters in Redis.
type RateLimitRepository struct {
	client redis.UniversalClient
}

// NewRateLimitRepository constructs the repository.
func NewRateLimitRepository(client redis.UniversalClient) *RateLimitRepository {
	return &RateLimitRepository{client: client}
}

// Allow counts one hit on key. The first hit opens the window; once the count passes
// limit the time left in the window is returned as the retry delay.
func (r *RateLimitRepository) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if r.client == nil {
		return true, 0, nil
	}

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit incr %s: %w", key, err)
	}
	if count == 1 {
		if err := r.client.PExpire(ctx, key, window).Err(); err != nil {
			return false, 0, fmt.Errorf("rate limit expire %s: %w", key, err)
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}

	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit ttl %s: %w", key, err)
	}
	if ttl < 0 {
		// counter lost its expiry; reopen the window
		_ = r.client.PExpire(ctx, key, window).Err()
		ttl = window
	}
	return false, ttl, nil
}
