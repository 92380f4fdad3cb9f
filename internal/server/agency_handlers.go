package server

import (
	"github.com/gofiber/fiber/v2"
)

type agencyNameRequest struct {
	Name string `json:"name"`
}

// CreateAgency handles POST /api/agencies
func (s *Server) CreateAgency(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req agencyNameRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	agency, err := s.agencyService.Create(c.UserContext(), userID, req.Name)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(agency)
}

// GetMyAgency handles GET /api/agencies/me
func (s *Server) GetMyAgency(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	agency, err := s.agencyService.Mine(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(agency)
}

// RenameAgency handles PUT /api/agencies/me
func (s *Server) RenameAgency(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req agencyNameRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	agency, err := s.agencyService.Rename(c.UserContext(), userID, req.Name)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(agency)
}

// InviteAgencyMember handles POST /api/agencies/invites
func (s *Server) InviteAgencyMember(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req struct {
		Email string `json:"email"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	invite, err := s.agencyService.Invite(c.UserContext(), userID, req.Email)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(invite)
}

// ListAgencyInvites handles GET /api/agencies/invites
func (s *Server) ListAgencyInvites(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	invites, err := s.agencyService.ListInvites(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(invites)
}

// AcceptAgencyInvite handles POST /api/agencies/invites/accept
func (s *Server) AcceptAgencyInvite(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req struct {
		Token string `json:"token"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	agency, err := s.agencyService.AcceptInvite(c.UserContext(), userID, req.Token)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(agency)
}

// RemoveAgencyMember handles DELETE /api/agencies/members/:userId
func (s *Server) RemoveAgencyMember(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	memberID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := s.agencyService.RemoveMember(c.UserContext(), userID, memberID); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
