// Package settings reads and writes a user's system prompt.
package settings

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/illegalcall/brainyx/internal/apperr"
	"github.com/illegalcall/brainyx/internal/identity"
	"github.com/illegalcall/brainyx/internal/models"
	"github.com/illegalcall/brainyx/internal/repository"
)

const (
	MinPromptLength = 10
	MaxPromptLength = 2000
)

const msgPromptLength = "El prompt del sistema debe tener entre 10 y 2000 caracteres"

type Service struct {
	store repository.UserStore
	now   func() time.Time
}

func NewService(store repository.UserStore) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Get returns the user's prompt, or the default persona when none is set.
func (s *Service) Get(user *models.User) models.SettingsResponse {
	prompt := user.SystemPrompt
	if prompt == "" {
		prompt = identity.DefaultSystemPrompt
	}
	return models.SettingsResponse{SystemPrompt: prompt}
}

func (s *Service) Update(ctx context.Context, user *models.User, prompt string) (models.SettingsResponse, error) {
	if n := utf8.RuneCountInString(prompt); n < MinPromptLength || n > MaxPromptLength {
		return models.SettingsResponse{}, apperr.Validation(msgPromptLength)
	}

	if err := s.store.UpdateSystemPrompt(ctx, user.ID, prompt, s.now().UTC()); err != nil {
		return models.SettingsResponse{}, fmt.Errorf("failed to update system prompt: %w", err)
	}
	user.SystemPrompt = prompt
	return models.SettingsResponse{SystemPrompt: prompt}, nil
}
