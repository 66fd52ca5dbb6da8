package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/brainyx/internal/identity"
	"github.com/illegalcall/brainyx/internal/models"
)

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := s.svc.Identity.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := s.svc.Identity.Login(c.UserContext(), req)
	if err != nil {
		return err
	}

	slog.Info("User successfully authenticated", "user_id", resp.User.ID)
	return c.JSON(resp)
}

func (s *Server) handleMe(c *fiber.Ctx) error {
	return c.JSON(identity.PublicUser(currentUser(c)))
}
