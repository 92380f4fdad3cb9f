package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetAnalyticsOverview handles GET /api/analytics/overview?days=30
func (s *Server) GetAnalyticsOverview(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	overview, err := s.analyticsService.Overview(c.UserContext(), userID, c.QueryInt("days", 0))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(overview)
}

// GetPostAnalytics handles GET /api/analytics/posts/:id
func (s *Server) GetPostAnalytics(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	history, err := s.analyticsService.PostHistory(c.UserContext(), userID, postID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(history)
}

// GetClientAnalytics handles GET /api/analytics/clients/:id?days=30
func (s *Server) GetClientAnalytics(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	clientID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	history, err := s.analyticsService.ClientHistory(c.UserContext(), userID, clientID, c.QueryInt("days", 0))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(history)
}
