package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ghostwriter/internal/linkedin"
	"ghostwriter/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"userId", "user ID"},
		{"clientId", "client ID"},
		{"postId", "post ID"},
		{"Id", "Id"},
		{"slug", "slug"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanizeParam(tt.param))
		})
	}
}

// --- parsePagination ---

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	app.Get("/items", func(c *fiber.Ctx) error {
		p := parsePagination(c, 25)
		return c.JSON(fiber.Map{"limit": p.Limit, "offset": p.Offset})
	})

	tests := []struct {
		query  string
		limit  float64
		offset float64
	}{
		{"", 25, 0},
		{"?limit=10&offset=30", 10, 30},
		{"?limit=500", 100, 0},
		{"?limit=-1&offset=-5", 25, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items"+tt.query, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			var body map[string]float64
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.limit, body["limit"])
			assert.Equal(t, tt.offset, body["offset"])
		})
	}
}

// --- parseID ---

func TestParseID(t *testing.T) {
	tests := []struct {
		param      string
		path       string
		wantStatus int
		wantError  string
	}{
		{"id", "/items/42", http.StatusOK, ""},
		{"id", "/items/abc", http.StatusBadRequest, "Invalid ID"},
		{"id", "/items/0", http.StatusBadRequest, "Invalid ID"},
		{"userId", "/items/-3", http.StatusBadRequest, "Invalid user ID"},
		{"clientId", "/items/x", http.StatusBadRequest, "Invalid client ID"},
	}
	for _, tt := range tests {
		t.Run(tt.param+tt.path, func(t *testing.T) {
			app := fiber.New()
			s := &Server{}
			app.Get("/items/:"+tt.param, func(c *fiber.Ctx) error {
				id, err := s.parseID(c, tt.param)
				if err != nil {
					return nil
				}
				return c.JSON(fiber.Map{"id": id})
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantError != "" {
				var body map[string]string
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, tt.wantError, body["error"])
				assert.Equal(t, models.CodeValidation, body["code"])
			}
		})
	}
}

// --- error mapping ---

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", models.NewValidationError("bad"), http.StatusBadRequest},
		{"unauthorized", models.NewUnauthorizedError("no"), http.StatusUnauthorized},
		{"forbidden", models.NewForbiddenError("plan"), http.StatusForbidden},
		{"not found", models.NewNotFoundError("Client", 1), http.StatusNotFound},
		{"conflict", models.NewConflictError("running"), http.StatusConflict},
		{"upstream needs reconnect", models.NewUpstreamError("reconnect", linkedin.ErrTokenExpired), http.StatusBadRequest},
		{"upstream unauthorized", models.NewUpstreamError("reconnect", &linkedin.APIError{Status: 401, Message: "revoked"}), http.StatusBadRequest},
		{"upstream failure", models.NewUpstreamError("failed", &linkedin.APIError{Status: 422, Message: "duplicate"}), http.StatusInternalServerError},
		{"wrapped app error", fmt.Errorf("load: %w", models.NewNotFoundError("Post", 2)), http.StatusNotFound},
		{"internal", models.NewInternalError(errors.New("boom")), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}

func TestRespondServiceError_Bodies(t *testing.T) {
	app := fiber.New()
	app.Get("/plain", func(c *fiber.Ctx) error {
		return respondServiceError(c, errors.New("pq: connection refused"))
	})
	app.Get("/upstream", func(c *fiber.Ctx) error {
		return respondServiceError(c, models.NewUpstreamError("LinkedIn publish failed",
			&linkedin.APIError{Status: 422, Message: "duplicate content"}))
	})

	t.Run("plain errors are hidden", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/plain", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		var body models.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "Internal server error", body.Error)
		assert.Equal(t, models.CodeInternal, body.Code)
		assert.Empty(t, body.Details)
	})

	t.Run("upstream message is surfaced", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/upstream", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		var body models.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, models.CodeUpstream, body.Code)
		assert.Contains(t, body.Details, "duplicate content")
	})
}
