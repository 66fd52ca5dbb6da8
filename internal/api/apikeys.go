package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/brainyx/internal/models"
)

const msgAPIKeyRevoked = "API key eliminada"

func (s *Server) handleListAPIKeys(c *fiber.Ctx) error {
	keys, err := s.svc.APIKeys.List(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(keys)
}

// handleCreateAPIKey is the only response that ever carries the raw key.
func (s *Server) handleCreateAPIKey(c *fiber.Ctx) error {
	var req models.CreateAPIKeyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	created, err := s.svc.APIKeys.Create(c.UserContext(), currentUser(c), req.Name)
	if err != nil {
		return err
	}
	return c.JSON(created)
}

func (s *Server) handleRevokeAPIKey(c *fiber.Ctx) error {
	if err := s.svc.APIKeys.Revoke(c.UserContext(), currentUser(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": msgAPIKeyRevoked})
}
