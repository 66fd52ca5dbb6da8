package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/brainyx/internal/models"
)

const (
	msgConversationDeleted = "Conversación eliminada"
	msgFeedbackThanks      = "Gracias por tu retroalimentación"
)

func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(s.svc.Settings.Get(currentUser(c)))
}

func (s *Server) handleUpdateSettings(c *fiber.Ctx) error {
	var req models.SettingsRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resp, err := s.svc.Settings.Update(c.UserContext(), currentUser(c), req.SystemPrompt)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (s *Server) handleListConversations(c *fiber.Ctx) error {
	convs, err := s.svc.Chat.List(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(convs)
}

func (s *Server) handleCreateConversation(c *fiber.Ctx) error {
	conv, err := s.svc.Chat.Create(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(conv)
}

func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	conv, err := s.svc.Chat.Get(c.UserContext(), currentUser(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(conv)
}

func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	if err := s.svc.Chat.Delete(c.UserContext(), currentUser(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": msgConversationDeleted})
}

func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req models.MessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	msg, err := s.svc.Chat.Send(c.UserContext(), currentUser(c), c.Params("id"), req.Content)
	if err != nil {
		return err
	}
	return c.JSON(msg)
}

func (s *Server) handleFeedback(c *fiber.Ctx) error {
	var req models.FeedbackRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if err := s.svc.Chat.Feedback(c.UserContext(), currentUser(c), req); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": msgFeedbackThanks})
}
