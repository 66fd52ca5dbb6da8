package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/illegalcall/brainyx/internal/apperr"
	"github.com/illegalcall/brainyx/internal/auth"
	"github.com/illegalcall/brainyx/internal/models"
	"github.com/illegalcall/brainyx/internal/repository"
)

const maxKeyNameLength = 100

const (
	msgKeyNameRequired = "El nombre de la API key es requerido"
	msgKeyNotFound     = "API key no encontrada"
)

// APIKeys issues and revokes the keys used by the public chat endpoint.
type APIKeys struct {
	store repository.APIKeyStore
	now   func() time.Time
}

func NewAPIKeys(store repository.APIKeyStore) *APIKeys {
	return &APIKeys{store: store, now: time.Now}
}

func (k *APIKeys) WithClock(now func() time.Time) *APIKeys {
	k.now = now
	return k
}

// Create issues a new key. The raw key is in the result and nowhere else.
func (k *APIKeys) Create(ctx context.Context, user *models.User, name string) (*models.CreatedAPIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxKeyNameLength {
		return nil, apperr.BadRequest(msgKeyNameRequired)
	}

	raw, preview, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	key := &models.APIKey{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Name:       name,
		KeyHash:    auth.HashAPIKey(raw),
		KeyPreview: preview,
		IsActive:   true,
		CreatedAt:  k.now().UTC(),
	}
	if err := k.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}

	return &models.CreatedAPIKey{
		ID:         key.ID,
		Name:       key.Name,
		Key:        raw,
		KeyPreview: key.KeyPreview,
		CreatedAt:  key.CreatedAt,
	}, nil
}

// List returns the caller's active keys.
func (k *APIKeys) List(ctx context.Context, user *models.User) ([]models.APIKey, error) {
	keys, err := k.store.ListAPIKeys(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	if keys == nil {
		keys = []models.APIKey{}
	}
	return keys, nil
}

// Revoke deactivates a key. Keys of other users are reported as not found.
func (k *APIKeys) Revoke(ctx context.Context, user *models.User, id string) error {
	if err := k.store.DeactivateAPIKey(ctx, id, user.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(msgKeyNotFound)
		}
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	return nil
}
