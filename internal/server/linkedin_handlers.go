package server

import (
	"ghostwriter/internal/linkedin"
	"ghostwriter/internal/models"

	"github.com/gofiber/fiber/v2"
)

// LinkedInAuthURL handles GET /api/linkedin/auth?client_id=
// @Summary Start LinkedIn OAuth
// @Tags linkedin
// @Produce json
// @Security BearerAuth
// @Param client_id query int true "Client ID"
// @Success 200 {object} object{url=string}
// @Failure 404 {object} models.ErrorResponse
// @Router /linkedin/auth [get]
func (s *Server) LinkedInAuthURL(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	clientID := c.QueryInt("client_id", 0)
	if clientID <= 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("client_id is required"))
	}

	authURL, err := s.linkedInService.AuthURL(c.UserContext(), userID, uint(clientID))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"url": authURL})
}

// LinkedInCallback handles GET /api/linkedin/callback. The browser is always
// redirected back to the app, with the outcome in the query string.
func (s *Server) LinkedInCallback(c *fiber.Ctx) error {
	if reason := c.Query("error"); reason != "" {
		desc := c.Query("error_description", reason)
		return c.Redirect(s.linkedInService.CallbackRedirect(0, models.NewValidationError(desc)))
	}

	clientID, err := s.linkedInService.Callback(c.UserContext(), c.Query("code"), c.Query("state"))
	return c.Redirect(s.linkedInService.CallbackRedirect(clientID, err))
}

// LinkedInStatus handles GET /api/linkedin/status/:clientId
func (s *Server) LinkedInStatus(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	clientID, err := s.parseID(c, "clientId")
	if err != nil {
		return nil
	}

	status, err := s.linkedInService.Status(c.UserContext(), userID, clientID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(status)
}

// LinkedInDisconnect handles DELETE /api/linkedin/:clientId
func (s *Server) LinkedInDisconnect(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	clientID, err := s.parseID(c, "clientId")
	if err != nil {
		return nil
	}

	if err := s.linkedInService.Disconnect(c.UserContext(), userID, clientID); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// LinkedInWebhookChallenge handles GET /api/linkedin/webhook?challengeCode=
func (s *Server) LinkedInWebhookChallenge(c *fiber.Ctx) error {
	code := c.Query("challengeCode")
	if code == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("challengeCode is required"))
	}
	return c.JSON(fiber.Map{
		"challengeCode":     code,
		"challengeResponse": s.linkedInService.WebhookChallenge(code),
	})
}

// LinkedInWebhook handles POST /api/linkedin/webhook
// @Summary LinkedIn engagement webhook
// @Tags linkedin
// @Accept json
// @Produce json
// @Param X-LI-Signature header string true "HMAC-SHA256 of the body"
// @Success 200 {object} service.WebhookResult
// @Failure 400 {object} models.ErrorResponse
// @Router /linkedin/webhook [post]
func (s *Server) LinkedInWebhook(c *fiber.Ctx) error {
	result, err := s.linkedInService.HandleWebhook(c.UserContext(), c.Body(), c.Get(linkedin.SignatureHeader))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(result)
}
