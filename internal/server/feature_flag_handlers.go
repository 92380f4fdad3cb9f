package server

import "github.com/gofiber/fiber/v2"

// GetFeatureFlags handles GET /api/feature-flags. Product flags the config
// does not mention are reported as allowed, matching how services gate them.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(userID),
	})
}
