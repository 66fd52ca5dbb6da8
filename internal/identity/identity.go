// Package identity owns accounts: registration, login, resolving the caller
// from a session token or an API key, and profile changes.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/illegalcall/brainyx/internal/apperr"
	"github.com/illegalcall/brainyx/internal/auth"
	"github.com/illegalcall/brainyx/internal/metrics"
	"github.com/illegalcall/brainyx/internal/models"
	"github.com/illegalcall/brainyx/internal/repository"
)

// DefaultSystemPrompt is the persona every new account starts with.
const DefaultSystemPrompt = `Eres un asistente de inteligencia artificial amigable y útil llamado "Brainyx".
Tu objetivo es ayudar a los usuarios de manera clara, concisa y empática.
Responde siempre en español a menos que el usuario te hable en otro idioma.
Sé profesional pero accesible, y siempre trata de dar respuestas útiles y bien estructuradas.`

const tokenType = "bearer"

const (
	minNameLength     = 2
	maxNameLength     = 100
	minPasswordLength = 6
)

const (
	msgEmailTaken       = "El correo electrónico ya está registrado"
	msgBadCredentials   = "Credenciales inválidas"
	msgTokenExpired     = "Token expirado"
	msgTokenInvalid     = "Token inválido"
	msgUserNotFound     = "Usuario no encontrado"
	msgAPIKeyMissing    = "API key requerida"
	msgAPIKeyInvalid    = "API key inválida"
	msgNoCredits        = "Saldo agotado. Compra un plan para recargar créditos"
	msgInvalidName      = "El nombre debe tener entre 2 y 100 caracteres"
	msgInvalidEmail     = "Correo electrónico inválido"
	msgInvalidPassword  = "La contraseña debe tener al menos 6 caracteres"
	msgMissingLoginData = "Correo y contraseña son requeridos"
)

type Store interface {
	repository.UserStore
	repository.APIKeyStore
}

type Service struct {
	store         Store
	codec         *auth.TokenCodec
	signupCredits int64
	now           func() time.Time
}

func NewService(store Store, codec *auth.TokenCodec, signupCredits int64) *Service {
	return &Service{
		store:         store,
		codec:         codec,
		signupCredits: signupCredits,
		now:           time.Now,
	}
}

// WithClock replaces the clock used for timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.TokenResponse, error) {
	name := strings.TrimSpace(req.Name)
	if n := utf8.RuneCountInString(name); n < minNameLength || n > maxNameLength {
		return nil, apperr.BadRequest(msgInvalidName)
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		return nil, apperr.BadRequest(msgInvalidPassword)
	}

	// Check-then-insert: two concurrent registrations for the same email can
	// both pass this check.
	_, err = s.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperr.Conflict(msgEmailTaken)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		SystemPrompt: DefaultSystemPrompt,
		Credits:      s.signupCredits,
		Plan:         models.PlanFree,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("User registered", "user_id", user.ID)
	metrics.Registrations.Inc()
	return s.tokenResponse(user)
}

func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, apperr.BadRequest(msgMissingLoginData)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized(msgBadCredentials)
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, apperr.Unauthorized(msgBadCredentials)
	}

	return s.tokenResponse(user)
}

// ResolveFromToken returns the user a bearer token was issued to.
func (s *Service) ResolveFromToken(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.codec.Parse(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperr.Unauthorized(msgTokenExpired)
		}
		return nil, apperr.Unauthorized(msgTokenInvalid)
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized(msgUserNotFound)
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return user, nil
}

// ResolveFromAPIKey authenticates a raw API key. The key must be active and
// its owner must have credits left. Its last-used time is updated on success.
func (s *Service) ResolveFromAPIKey(ctx context.Context, raw string) (*models.User, *models.APIKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil, apperr.Unauthorized(msgAPIKeyMissing)
	}
	if !auth.LooksLikeAPIKey(raw) {
		return nil, nil, apperr.Unauthorized(msgAPIKeyInvalid)
	}

	key, err := s.store.GetAPIKeyByHash(ctx, auth.HashAPIKey(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.Unauthorized(msgAPIKeyInvalid)
		}
		return nil, nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	if !key.IsActive {
		return nil, nil, apperr.Unauthorized(msgAPIKeyInvalid)
	}

	user, err := s.store.GetUserByID(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.Unauthorized(msgAPIKeyInvalid)
		}
		return nil, nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if user.Credits <= 0 {
		return nil, nil, apperr.PaymentRequired(msgNoCredits)
	}

	if err := s.store.TouchAPIKey(ctx, key.ID, s.now().UTC()); err != nil {
		return nil, nil, fmt.Errorf("failed to touch api key: %w", err)
	}
	return user, key, nil
}

// UpdateProfile applies the non-nil fields of update. A blank name is ignored.
func (s *Service) UpdateProfile(ctx context.Context, user *models.User, update models.ProfileUpdate) (*models.User, error) {
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			update.Name = nil
		} else if n := utf8.RuneCountInString(name); n < minNameLength || n > maxNameLength {
			return nil, apperr.BadRequest(msgInvalidName)
		} else {
			update.Name = &name
		}
	}
	if update.Name == nil && update.ProfileImage == nil {
		return user, nil
	}

	updated, err := s.store.UpdateUserProfile(ctx, user.ID, update, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return updated, nil
}

func (s *Service) tokenResponse(user *models.User) (*models.TokenResponse, error) {
	token, _, err := s.codec.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &models.TokenResponse{
		AccessToken: token,
		TokenType:   tokenType,
		User:        PublicUser(user),
	}, nil
}

// PublicUser projects a user for clients. The password hash never leaves.
func PublicUser(u *models.User) models.PublicUser {
	return models.PublicUser{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		MaskedEmail:  auth.MaskEmail(u.Email),
		SystemPrompt: u.SystemPrompt,
		ProfileImage: u.ProfileImage,
		Credits:      u.Credits,
		Plan:         u.Plan,
		CreatedAt:    u.CreatedAt,
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.BadRequest(msgInvalidEmail)
	}
	return email, nil
}
