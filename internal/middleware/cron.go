package middleware

import (
	"crypto/subtle"

	"ghostwriter/internal/models"

	"github.com/gofiber/fiber/v2"
)

// CronSecretHeader carries the shared secret on scheduler calls.
const CronSecretHeader = "X-Cron-Secret"

// RequireCronSecret guards scheduler-only endpoints. An empty secret rejects
// every request.
func RequireCronSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(CronSecretHeader)
		if secret == "" || got == "" ||
			subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid cron secret"))
		}
		return c.Next()
	}
}
