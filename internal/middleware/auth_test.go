package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func signClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestIssueAndParseToken(t *testing.T) {
	raw, err := IssueToken(testSecret, 42, time.Now())
	require.NoError(t, err)

	id, err := ParseToken(testSecret, raw)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	_, err = ParseToken("another-secret-another-secret-1234", raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = IssueToken("", 1, time.Now())
	assert.Error(t, err)
}

func TestParseTokenAt_UsesGivenClock(t *testing.T) {
	issued := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	raw, err := IssueToken(testSecret, 7, issued)
	require.NoError(t, err)

	id, err := ParseTokenAt(testSecret, raw, issued.Add(TokenTTL-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)

	_, err = ParseTokenAt(testSecret, raw, issued.Add(TokenTTL+time.Minute))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseTokenAt(testSecret, raw, issued.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidToken, "not valid before issue time")
}

func TestRequireAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/test", RequireAuth(testSecret), func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"userID": c.Locals("userID")})
	})

	valid, err := IssueToken(testSecret, 123, time.Now())
	require.NoError(t, err)

	now := time.Now()
	expired := signClaims(t, jwt.MapClaims{
		"sub": "123", "iss": TokenIssuer, "aud": TokenAudience,
		"exp": now.Add(-time.Hour).Unix(),
	})
	wrongAudience := signClaims(t, jwt.MapClaims{
		"sub": "123", "iss": TokenIssuer, "aud": "someone-else",
		"exp": now.Add(time.Hour).Unix(),
	})
	noExpiry := signClaims(t, jwt.MapClaims{
		"sub": "123", "iss": TokenIssuer, "aud": TokenAudience,
	})
	badSubject := signClaims(t, jwt.MapClaims{
		"sub": "abc", "iss": TokenIssuer, "aud": TokenAudience,
		"exp": now.Add(time.Hour).Unix(),
	})

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedUserID uint
	}{
		{"Happy Path", "Bearer " + valid, http.StatusOK, 123},
		{"Lowercase Scheme", "bearer " + valid, http.StatusOK, 123},
		{"Missing Header", "", http.StatusUnauthorized, 0},
		{"Invalid Format", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, 0},
		{"Malformed Token", "Bearer malformed.token.here", http.StatusUnauthorized, 0},
		{"Expired Token", "Bearer " + expired, http.StatusUnauthorized, 0},
		{"Wrong Audience", "Bearer " + wrongAudience, http.StatusUnauthorized, 0},
		{"Missing Expiry", "Bearer " + noExpiry, http.StatusUnauthorized, 0},
		{"Non Numeric Subject", "Bearer " + badSubject, http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tt.expectedStatus == http.StatusOK {
				assert.EqualValues(t, tt.expectedUserID, body["userID"])
			} else {
				assert.Equal(t, "UNAUTHORIZED", body["code"])
			}
		})
	}
}
