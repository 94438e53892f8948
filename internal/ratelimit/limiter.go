package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// Result reports the outcome of a single Check.
type Result struct {
	Success   bool
	Limit     int
	Remaining int
}

// Limiter counts calls per token and decides whether the caller is over budget.
type Limiter interface {
	Check(ctx context.Context, token string, limit int) (Result, error)
}

// FixedWindow counts requests in aligned windows of Interval length, keyed by
// floor(now/interval). Every call increments, including calls already over the
// limit, so a rejected client keeps the window saturated.
//
// Two adjacent windows can admit up to 2*limit calls across a boundary.
type FixedWindow struct {
	rdb       redis.Cmdable
	namespace string
	interval  time.Duration
	now       func() time.Time
}

// NewFixedWindow builds a limiter whose keys live under ratelimit:{namespace}:.
func NewFixedWindow(rdb redis.Cmdable, namespace string, interval time.Duration) *FixedWindow {
	if interval <= 0 {
		interval = time.Minute
	}
	return &FixedWindow{
		rdb:       rdb,
		namespace: namespace,
		interval:  interval,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Tests use it to pin windows.
func (l *FixedWindow) WithClock(now func() time.Time) *FixedWindow {
	l.now = now
	return l
}

// Check increments the caller's counter for the current window and reports
// whether the new count is within limit.
func (l *FixedWindow) Check(ctx context.Context, token string, limit int) (Result, error) {
	key := l.windowKey(token)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.ttl())
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limiter pipeline (incr+expire): %w", err)
	}

	count := int(incr.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Success:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
	}, nil
}

// Interval returns the window length.
func (l *FixedWindow) Interval() time.Duration {
	return l.interval
}

func (l *FixedWindow) windowKey(token string) string {
	window := l.now().UnixMilli() / l.interval.Milliseconds()
	if l.namespace == "" {
		return fmt.Sprintf("%s%s:%d", keyPrefix, token, window)
	}
	return fmt.Sprintf("%s%s:%s:%d", keyPrefix, l.namespace, token, window)
}

// ttl rounds the interval up to whole seconds.
func (l *FixedWindow) ttl() time.Duration {
	secs := (l.interval + time.Second - 1) / time.Second
	return secs * time.Second
}
