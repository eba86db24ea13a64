// Package ratelimit restricts how often one client may hit one route within
// a fixed window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Counter counts hits on key inside a window that starts with the first hit.
// It returns the count so far and the time left in the window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

type Limiter struct {
	counter Counter
	limit   int64
	window  time.Duration
}

func NewLimiter(counter Counter, limit int64, window time.Duration) (*Limiter, error) {
	if counter == nil {
		return nil, errors.New("[NewLimiter] counter is required")
	}
	if limit <= 0 {
		return nil, errors.New("[NewLimiter] limit must be positive")
	}
	if window <= 0 {
		return nil, errors.New("[NewLimiter] window must be positive")
	}
	return &Limiter{counter: counter, limit: limit, window: window}, nil
}

// Allow counts one visit on key. Once the count passes the limit the key is
// blocked until its window runs out.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, ttl, err := l.counter.Incr(ctx, key, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("[Limiter.Allow] Incr: %w", err)
	}
	d := Decision{Allowed: count <= l.limit, Count: count}
	if !d.Allowed {
		d.RetryAfter = ttl
		if d.RetryAfter <= 0 {
			d.RetryAfter = l.window
		}
	}
	return d, nil
}

func (l *Limiter) Window() time.Duration {
	return l.window
}

// Key identifies one client on one route.
func Key(ip, method, path string) string {
	return ip + ":" + method + ":" + path
}
