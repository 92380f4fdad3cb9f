package server

import (
	"ghostwriter/internal/service"

	"github.com/gofiber/fiber/v2"
)

// clientRequest is shared by create and update. Omitted fields are left
// untouched on update.
type clientRequest struct {
	Name           *string  `json:"name"`
	Industry       *string  `json:"industry"`
	Tone           *string  `json:"tone"`
	BrandVoice     *string  `json:"brand_voice"`
	TargetAudience *string  `json:"target_audience"`
	Topics         []string `json:"topics"`
	AccountType    *string  `json:"account_type"`
	LinkedInOrgID  *string  `json:"linkedin_org_id"`
}

func (r clientRequest) input() service.ClientInput {
	return service.ClientInput{
		Name:           r.Name,
		Industry:       r.Industry,
		Tone:           r.Tone,
		BrandVoice:     r.BrandVoice,
		TargetAudience: r.TargetAudience,
		Topics:         r.Topics,
		AccountType:    r.AccountType,
		LinkedInOrgID:  r.LinkedInOrgID,
	}
}

// GetClients handles GET /api/clients
func (s *Server) GetClients(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	clients, err := s.clientService.List(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(clients)
}

// GetClient handles GET /api/clients/:id
func (s *Server) GetClient(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	clientID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	client, err := s.clientService.Get(c.UserContext(), userID, clientID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(client)
}

// CreateClient handles POST /api/clients
// @Summary Create client
// @Tags clients
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 201 {object} models.Client
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /clients [post]
func (s *Server) CreateClient(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req clientRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	client, err := s.clientService.Create(c.UserContext(), userID, req.input())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(client)
}

// UpdateClient handles PUT /api/clients/:id
func (s *Server) UpdateClient(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	clientID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req clientRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	client, err := s.clientService.Update(c.UserContext(), userID, clientID, req.input())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(client)
}

// DeleteClient handles DELETE /api/clients/:id
func (s *Server) DeleteClient(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	clientID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.clientService.Delete(c.UserContext(), userID, clientID); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
