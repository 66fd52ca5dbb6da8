package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/brainyx/internal/billing"
	"github.com/illegalcall/brainyx/internal/models"
)

func (s *Server) handlePlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": billing.Plans()})
}

func (s *Server) handlePurchase(c *fiber.Ctx) error {
	var req models.PurchaseRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := s.svc.Billing.Purchase(c.UserContext(), currentUser(c), req.PlanID)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (s *Server) handleUsage(c *fiber.Ctx) error {
	return c.JSON(s.svc.Billing.Usage(currentUser(c)))
}

func (s *Server) handleCreateCheckout(c *fiber.Ctx) error {
	var req models.CheckoutRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := s.svc.Payments.CreateCheckout(c.UserContext(), currentUser(c), req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (s *Server) handleCheckoutStatus(c *fiber.Ctx) error {
	resp, err := s.svc.Payments.Status(c.UserContext(), currentUser(c), c.Params("session_id"))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
