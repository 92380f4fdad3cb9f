// Package cache provides Redis caching and locking utilities for the application.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"ghostwriter/internal/observability"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// metricsHook counts failed commands. redis.Nil is a miss, not a failure.
type metricsHook struct{}

func countFailure(name string, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		observability.RedisErrors.WithLabelValues(name).Inc()
	}
}

func (metricsHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		countFailure(cmd.Name(), err)
		return err
	}
}

func (metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		countFailure("pipeline", err)
		return err
	}
}

// InitRedis connects to addr, which is host:port or a redis:// URL. Redis is
// optional: an empty address, a bad URL or a failed ping leaves the client
// nil and callers fall back to in-process behavior.
func InitRedis(addr string) {
	client = nil
	addr = strings.TrimSpace(addr)
	if addr == "" {
		slog.Info("redis not configured, continuing without cache")
		return
	}

	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			slog.Warn("invalid REDIS_URL, continuing without cache", slog.String("error", err.Error()))
			return
		}
		opts = parsed
	}

	c := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable, continuing without cache",
			slog.String("addr", opts.Addr), slog.String("error", err.Error()))
		_ = c.Close()
		return
	}

	SetClient(c)
	slog.Info("redis connected", slog.String("addr", opts.Addr))
}

// GetClient returns the current Redis client instance, or nil.
func GetClient() *redis.Client {
	return client
}

// SetClient replaces the package client and instruments it. Used by
// bootstrap and tests.
func SetClient(c *redis.Client) {
	if c != nil {
		c.AddHook(metricsHook{})
	}
	client = c
}
