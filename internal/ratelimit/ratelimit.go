// Package ratelimit parses "N/period" limits and provides echo rate
// limiter stores backed by memory or Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"taskapi/internal/cache"
)

// Limit allows Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

func (l Limit) String() string {
	return fmt.Sprintf("%d/%s", l.Requests, l.Window)
}

var periods = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// Parse reads limits such as "100/hour", "100 per hour" or "5/minutes".
func Parse(s string) (Limit, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	count, period, ok := strings.Cut(s, "/")
	if !ok {
		count, period, ok = strings.Cut(s, " per ")
	}
	if !ok {
		return Limit{}, fmt.Errorf("rate limit %q: expected N/period", s)
	}

	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return Limit{}, fmt.Errorf("rate limit %q: count must be a positive integer", s)
	}
	period = strings.TrimSuffix(strings.TrimSpace(period), "s")
	window, ok := periods[period]
	if !ok {
		return Limit{}, fmt.Errorf("rate limit %q: unknown period %q", s, period)
	}
	return Limit{Requests: n, Window: window}, nil
}

// NewMemoryStore returns a process-local token bucket store that refills
// Requests tokens evenly over Window.
func NewMemoryStore(l Limit) middleware.RateLimiterStore {
	return middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(l.Requests) / l.Window.Seconds()),
		Burst:     l.Requests,
		ExpiresIn: l.Window,
	})
}

// RedisStore is a fixed-window limiter shared by every API instance.
// When Redis is unreachable requests are allowed.
type RedisStore struct {
	cache   *cache.Client
	limit   Limit
	timeout time.Duration
	now     func() time.Time
}

var _ middleware.RateLimiterStore = (*RedisStore)(nil)

// NewRedisStore creates a fixed-window store over client.
func NewRedisStore(client *cache.Client, l Limit) *RedisStore {
	return &RedisStore{
		cache:   client,
		limit:   l,
		timeout: 200 * time.Millisecond,
		now:     time.Now,
	}
}

// Allow implements middleware.RateLimiterStore.
func (s *RedisStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	window := s.now().UnixNano() / int64(s.limit.Window)
	key := fmt.Sprintf("ratelimit:%s:%d", identifier, window)
	count, ok := s.cache.IncrWindow(ctx, key, s.limit.Window)
	if !ok {
		return true, nil
	}
	return count <= int64(s.limit.Requests), nil
}
