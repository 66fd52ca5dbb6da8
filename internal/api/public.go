package api

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/brainyx/internal/apperr"
	"github.com/illegalcall/brainyx/internal/metrics"
	"github.com/illegalcall/brainyx/internal/models"
)

const msgEmptyPublicMessage = "El mensaje no puede estar vacío"

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Brainyx API", "status": "online"})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if err := s.store.Ping(c.UserContext()); err != nil {
		slog.Error("Health check failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":    "unhealthy",
			"timestamp": time.Now().UTC(),
		})
	}
	return c.JSON(fiber.Map{"status": "healthy", "timestamp": time.Now().UTC()})
}

// handlePublicChat answers one message for an API key holder. The gate on
// credits happens while resolving the key; the debit follows the reply.
func (s *Server) handlePublicChat(c *fiber.Ctx) error {
	user, key, err := s.svc.Identity.ResolveFromAPIKey(c.UserContext(), c.Get(apiKeyHeader))
	if err != nil {
		return err
	}

	var req models.PublicChatRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Message) == "" {
		return apperr.BadRequest(msgEmptyPublicMessage)
	}

	prompt := req.SystemPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = s.svc.Settings.Get(user).SystemPrompt
	}

	sessionKey := fmt.Sprintf("api-%s-%s", key.ID, user.ID)
	reply, _ := s.svc.LLM.Complete(c.UserContext(), sessionKey, prompt, req.Message)

	balance, err := s.svc.Billing.Charge(c.UserContext(), models.Usage{
		UserID:   user.ID,
		Source:   models.UsageSourceAPI,
		APIKeyID: key.ID,
		Credits:  s.cfg.Billing.APICost,
	})
	if err != nil {
		return err
	}
	metrics.PublicAPICalls.Inc()

	return c.JSON(models.PublicChatResponse{Response: reply, CreditsRemaining: balance})
}
