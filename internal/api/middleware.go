package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/brainyx/internal/apperr"
	"github.com/illegalcall/brainyx/internal/models"
)

const (
	localsUser   = "current_user"
	apiKeyHeader = "X-API-Key"
)

const msgNotAuthenticated = "No autenticado"

// requireUser runs after the JWT gate and loads the account the token
// belongs to.
func (s *Server) requireUser(c *fiber.Ctx) error {
	user, err := s.svc.Identity.ResolveFromToken(c.UserContext(), bearerToken(c))
	if err != nil {
		return err
	}
	c.Locals(localsUser, user)
	return c.Next()
}

// handleJWTError reports why the gate rejected a request.
func (s *Server) handleJWTError(c *fiber.Ctx, err error) error {
	token := bearerToken(c)
	if token == "" {
		return apperr.Unauthorized(msgNotAuthenticated)
	}
	if _, resolveErr := s.svc.Identity.ResolveFromToken(c.UserContext(), token); resolveErr != nil {
		return resolveErr
	}
	return apperr.Unauthorized(msgNotAuthenticated)
}

func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(localsUser).(*models.User)
	return user
}

func bearerToken(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
