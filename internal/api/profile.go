package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/brainyx/internal/apperr"
	"github.com/illegalcall/brainyx/internal/identity"
	"github.com/illegalcall/brainyx/internal/models"
	"github.com/illegalcall/brainyx/internal/storage"
)

const (
	msgInvalidImage = "Imagen de perfil inválida"
	msgNoImage      = "El usuario no tiene imagen de perfil"
)

// handleUpdateProfile stores a new profile image, if one was sent, before
// updating the account. An empty profile_image removes the current one.
func (s *Server) handleUpdateProfile(c *fiber.Ctx) error {
	user := currentUser(c)

	var req models.UpdateProfileRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	update := models.ProfileUpdate{Name: req.Name}
	if req.ProfileImage != nil {
		name, err := storage.Save(c.UserContext(), s.svc.Storage, *req.ProfileImage)
		if err != nil {
			if errors.Is(err, storage.ErrInvalidImage) {
				slog.Warn("Rejected profile image", "user_id", user.ID, "error", err)
				return apperr.BadRequest(msgInvalidImage)
			}
			return err
		}
		update.ProfileImage = &name
	}

	previous := user.ProfileImage
	updated, err := s.svc.Identity.UpdateProfile(c.UserContext(), user, update)
	if err != nil {
		if update.ProfileImage != nil && *update.ProfileImage != "" {
			s.deleteImage(c, *update.ProfileImage)
		}
		return err
	}

	if update.ProfileImage != nil && previous != "" && previous != *update.ProfileImage {
		s.deleteImage(c, previous)
	}
	return c.JSON(identity.PublicUser(updated))
}

func (s *Server) handleProfileImage(c *fiber.Ctx) error {
	user := currentUser(c)
	if user.ProfileImage == "" {
		return apperr.NotFound(msgNoImage)
	}

	path, err := s.svc.Storage.Path(user.ProfileImage)
	if err != nil {
		return apperr.NotFound(msgNoImage)
	}
	return c.SendFile(path)
}

func (s *Server) deleteImage(c *fiber.Ctx, name string) {
	if err := s.svc.Storage.Delete(c.UserContext(), name); err != nil {
		slog.Error("Failed to delete profile image", "image", name, "error", err)
	}
}
