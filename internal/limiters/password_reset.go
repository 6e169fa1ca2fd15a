package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rutapp/authcore/internal/rate"
)

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

type ResetRequestConfig struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// ResetRequestLimiter counts reset requests per auth identity. Reserve
// increments and compares in one step; a caller whose request fails before
// a token is stored hands the slot back with Release.
type ResetRequestLimiter struct {
	window *rate.Window
	config ResetRequestConfig
}

func NewResetRequestLimiter(redisClient redis.UniversalClient, cfg ResetRequestConfig) *ResetRequestLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ac"
	}
	return &ResetRequestLimiter{
		window: rate.NewWindow(redisClient, cfg.Window),
		config: cfg,
	}
}

func (l *ResetRequestLimiter) Reserve(ctx context.Context, authID string) error {
	if l == nil {
		return nil
	}
	_, err := l.window.Take(ctx, l.key(authID), l.config.MaxRequests)
	return mapRateError(err)
}

func (l *ResetRequestLimiter) Release(ctx context.Context, authID string) error {
	if l == nil {
		return nil
	}
	return mapRateError(l.window.Release(ctx, l.key(authID)))
}

func (l *ResetRequestLimiter) key(authID string) string {
	return l.config.KeyPrefix + ":reset:limit:" + authID
}

func mapRateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrResetRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
}
