package server

import (
	"ghostwriter/internal/billing"

	"github.com/gofiber/fiber/v2"
)

// GetPlans handles GET /api/billing/plans
func (s *Server) GetPlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": s.billingService.Plans()})
}

// GetSubscription handles GET /api/billing/subscription
func (s *Server) GetSubscription(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	sub, err := s.billingService.Subscription(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(sub)
}

// CreateCheckout handles POST /api/billing/checkout
// @Summary Start a subscription checkout
// @Tags billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{plan=string} true "Paid plan id"
// @Success 200 {object} object{url=string}
// @Failure 400 {object} models.ErrorResponse
// @Router /billing/checkout [post]
func (s *Server) CreateCheckout(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req struct {
		Plan string `json:"plan"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	checkoutURL, err := s.billingService.Checkout(c.UserContext(), userID, req.Plan)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"url": checkoutURL})
}

// CreatePortal handles POST /api/billing/portal
func (s *Server) CreatePortal(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	portalURL, err := s.billingService.Portal(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"url": portalURL})
}

// StripeWebhook handles POST /api/billing/webhook. A 500 makes Stripe
// redeliver the event.
// @Summary Stripe webhook
// @Tags billing
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe signature"
// @Success 200 {object} service.WebhookResult
// @Failure 400 {object} models.ErrorResponse
// @Router /billing/webhook [post]
func (s *Server) StripeWebhook(c *fiber.Ctx) error {
	result, err := s.billingService.HandleWebhook(c.UserContext(), c.Body(), c.Get(billing.SignatureHeader))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(result)
}
