package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "quota:"
	keyTTL    = 48 * time.Hour

	// DefaultCeiling is the number of generations a user may run per UTC day.
	DefaultCeiling = 25
)

// consumeScript increments the day counter only while it is below the
// ceiling. Returns {allowed, count}.
var consumeScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local ceiling = tonumber(ARGV[1])
if current >= ceiling then
  return {0, current}
end
current = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
return {1, current}
`)

// Result is the outcome of Consume.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
}

// Usage is a read-only snapshot of today's counter.
type Usage struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// Counter enforces a fixed daily ceiling per user, keyed by UTC calendar date.
type Counter struct {
	rdb     redis.Cmdable
	ceiling int
	now     func() time.Time
}

// NewCounter creates a Counter. A non-positive ceiling falls back to DefaultCeiling.
func NewCounter(rdb redis.Cmdable, ceiling int) *Counter {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Counter{rdb: rdb, ceiling: ceiling, now: time.Now}
}

// WithClock replaces the time source.
func (c *Counter) WithClock(now func() time.Time) *Counter {
	c.now = now
	return c
}

// Ceiling returns the configured daily limit.
func (c *Counter) Ceiling() int {
	return c.ceiling
}

// Consume charges one generation to userID for today. When the user is
// already at the ceiling nothing is written and Allowed is false.
// Store failures are returned so callers can fail closed.
func (c *Counter) Consume(ctx context.Context, userID string) (Result, error) {
	key := c.dayKey(userID)

	vals, err := consumeScript.Run(ctx, c.rdb, []string{key}, c.ceiling, int(keyTTL.Seconds())).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("consuming quota: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("consuming quota: unexpected script reply %v", vals)
	}

	if vals[0] == 0 {
		return Result{Allowed: false, Limit: c.ceiling, Remaining: 0}, nil
	}

	remaining := c.ceiling - int(vals[1])
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Limit: c.ceiling, Remaining: remaining}, nil
}

// Peek reports today's usage without charging anything.
func (c *Counter) Peek(ctx context.Context, userID string) (*Usage, error) {
	used, err := c.rdb.Get(ctx, c.dayKey(userID)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading quota: %w", err)
	}

	remaining := c.ceiling - used
	if remaining < 0 {
		remaining = 0
	}

	today := c.now().UTC().Truncate(24 * time.Hour)
	return &Usage{
		Used:      used,
		Limit:     c.ceiling,
		Remaining: remaining,
		ResetsAt:  today.Add(24 * time.Hour),
	}, nil
}

func (c *Counter) dayKey(userID string) string {
	return keyPrefix + userID + ":" + c.now().UTC().Format(time.DateOnly)
}
