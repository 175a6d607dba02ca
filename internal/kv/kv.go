// Package kv wraps Redis for cross-instance login throttling. Deployments
// without Redis run fail-open: every check reports the attempt as allowed.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginLimiter counts login attempts per key inside a rolling window.
type LoginLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewLoginLimiter connects to redisURL ("" disables limiting) and allows
// limit attempts per window.
func NewLoginLimiter(redisURL string, limit int64, window time.Duration) (*LoginLimiter, error) {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	l := &LoginLimiter{limit: limit, window: window}
	if redisURL == "" {
		return l, nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("kv: parse redis url: %w", err)
	}
	l.client = redis.NewClient(opt)
	return l, nil
}

// Available reports whether a Redis backend is configured.
func (l *LoginLimiter) Available() bool { return l != nil && l.client != nil }

// Allow counts one attempt for key and reports whether it is within the
// limit. Redis errors fail open so an outage cannot lock admins out.
func (l *LoginLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if !l.Available() {
		return true, nil
	}
	redisKey := "login_attempts:" + key
	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, err
	}
	return incr.Val() <= l.limit, nil
}

// Reset clears the counter for key, typically after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, key string) {
	if !l.Available() {
		return
	}
	_ = l.client.Del(ctx, "login_attempts:"+key).Err()
}

// Close releases the underlying connection.
func (l *LoginLimiter) Close() error {
	if !l.Available() {
		return nil
	}
	return l.client.Close()
}
