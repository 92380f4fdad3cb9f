package server

import (
	"ghostwriter/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Register handles POST /api/auth/register
// @Summary Register
// @Description Create an account and return a session token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{name=string,email=string,password=string} true "Registration"
// @Success 200 {object} service.AuthResult
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	result, err := s.authService.Register(c.UserContext(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(result)
}

// Login handles POST /api/auth/login
// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Credentials"
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	result, err := s.authService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(result)
}

// VerifyEmail handles POST /api/auth/verify-email
func (s *Server) VerifyEmail(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	if err := s.authService.VerifyEmail(c.UserContext(), req.Token); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Email verified"})
}

// ResendVerification handles POST /api/auth/resend-verification
func (s *Server) ResendVerification(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	if err := s.authService.ResendVerification(c.UserContext(), userID); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Verification email sent"})
}

// ForgotPassword handles POST /api/auth/forgot-password. The response does
// not reveal whether the email is registered.
func (s *Server) ForgotPassword(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	if err := s.authService.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": service.ForgotPasswordMessage})
}

// ResetPassword handles POST /api/auth/reset-password
func (s *Server) ResetPassword(c *fiber.Ctx) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	if err := s.authService.ResetPassword(c.UserContext(), req.Token, req.Password); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Password has been reset"})
}

// Me handles GET /api/auth/me
// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Router /auth/me [get]
func (s *Server) Me(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	user, err := s.authService.Me(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}
