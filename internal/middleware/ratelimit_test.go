package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowLimiter(t *testing.T) {
	l := NewSlidingWindowLimiter(2, time.Minute)
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow("ip:1", start))
	assert.True(t, l.Allow("ip:1", start.Add(10*time.Second)))
	assert.False(t, l.Allow("ip:1", start.Add(20*time.Second)))
	assert.Equal(t, 0, l.Remaining("ip:1", start.Add(20*time.Second)))

	// Other identifiers are independent.
	assert.True(t, l.Allow("ip:2", start.Add(20*time.Second)))

	// The first hit slides out of the window.
	assert.True(t, l.Allow("ip:1", start.Add(61*time.Second)))
	assert.False(t, l.Allow("ip:1", start.Add(62*time.Second)))
	assert.True(t, l.Allow("ip:1", start.Add(71*time.Second)))
}

func TestSlidingWindowLimiter_SweepsIdleKeys(t *testing.T) {
	l := NewSlidingWindowLimiter(1, time.Second)
	now := time.Now()
	l.Allow("a", now)
	l.Allow("b", now.Add(5*time.Second))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.hits, "a")
	assert.Contains(t, l.hits, "b")
}

func TestCheckRateLimit_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := CheckRateLimit(ctx, rdb, "login", "ip:1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := CheckRateLimit(ctx, rdb, "login", "ip:1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Greater(t, mr.TTL("rl:login:ip:1"), time.Duration(0))

	_, err = CheckRateLimit(ctx, nil, "login", "ip:1", 3, time.Minute)
	assert.Error(t, err)
}

func TestRateLimitMiddleware_InMemoryFallback(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	app := fiber.New()
	app.Post("/login", RateLimit(nil, 2, time.Minute, "login"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestRateLimitMiddleware_Redis(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	app := fiber.New()
	app.Get("/x", RateLimit(rdb, 1, time.Minute, "x"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimitMiddleware_FailClosed(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	app := fiber.New()
	app.Get("/x", RateLimitWithPolicy(rdb, 1, time.Minute, FailClosed, "x"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRateLimitMiddleware_TestEnvBypass(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	app := fiber.New()
	app.Get("/x", RateLimit(nil, 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}
