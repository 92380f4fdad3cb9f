package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger
	Logger = NewLogger(&buf, "production", level)
	t.Cleanup(func() { Logger = prev })
	return &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewLogger_AddsContextValues(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "production", "info")

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, UserIDKey, uint(9))
	log.With("component", "test").InfoContext(ctx, "hello")

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.EqualValues(t, 9, lines[0]["user_id"])
	assert.Equal(t, "test", lines[0]["component"])
}

func TestNewLogger_TextOutsideProduction(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "development", "debug").Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")

	buf.Reset()
	NewLogger(&buf, "development", "warn").Info("hidden")
	assert.Empty(t, buf.String())
}

func TestStructuredLogger_Levels(t *testing.T) {
	buf := captureLogs(t, "info")

	app := fiber.New()
	app.Use(requestid.New(), ContextMiddleware(), StructuredLogger())
	app.Get("/health/live", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/api/posts/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })
	app.Get("/boom", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusInternalServerError, "db down") })

	for _, path := range []string{"/health/live", "/api/posts/3", "/boom"} {
		_, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
	}

	lines := logLines(t, buf)
	require.Len(t, lines, 2, "health probe logs at debug")

	assert.Equal(t, "INFO", lines[0]["level"])
	assert.EqualValues(t, 404, lines[0]["status"])
	assert.Equal(t, "/api/posts/:id", lines[0]["route"])
	assert.NotEmpty(t, lines[0]["request_id"])

	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.EqualValues(t, 500, lines[1]["status"])
	assert.Equal(t, "db down", lines[1]["error"])
}
