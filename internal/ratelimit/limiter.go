package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Result reports the outcome of one limiter consumption.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// Limiter is a programmatic rate limiter for non-HTTP callers, for example
// the summary generation path, where the stdlib middleware from ulule does
// not apply.
type Limiter interface {
	// CheckAndConsume takes one token for key and reports whether the
	// request is within the rate.
	CheckAndConsume(ctx context.Context, key string) (Result, error)
}

// ULimiter adapts a ulule/limiter instance to the Limiter interface.
type ULimiter struct {
	instance *limiter.Limiter
}

// NewRedisLimiter builds a Redis-backed limiter from a formatted rate such
// as "5-M" or "100-H".
func NewRedisLimiter(client *redis.Client, rate string) (*ULimiter, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}
	store, err := redisstore.NewStore(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis store: %w", err)
	}
	return &ULimiter{instance: limiter.New(store, parsed)}, nil
}

// NewMemoryLimiter builds an in-process limiter. Counts are per process, so
// this is only suitable for single-instance deployments and tests.
func NewMemoryLimiter(rate string) (*ULimiter, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}
	return &ULimiter{instance: limiter.New(memorystore.NewStore(), parsed)}, nil
}

// CheckAndConsume takes one token for key.
func (l *ULimiter) CheckAndConsume(ctx context.Context, key string) (Result, error) {
	lctx, err := l.instance.Get(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("rate limiter store: %w", err)
	}
	return Result{
		Allowed:   !lctx.Reached,
		Remaining: lctx.Remaining,
		ResetAt:   time.Unix(lctx.Reset, 0),
	}, nil
}
