package server

import "github.com/gofiber/fiber/v2"

// GetActivities handles GET /api/activities, newest first.
func (s *Server) GetActivities(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	page := parsePagination(c, 20)

	activities, total, err := s.activityService.List(c.UserContext(), userID, page.Limit, page.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"activities": activities,
		"total":      total,
		"limit":      page.Limit,
		"offset":     page.Offset,
	})
}
