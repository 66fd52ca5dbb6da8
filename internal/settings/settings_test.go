package settings

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/brainyx/internal/apperr"
	"github.com/illegalcall/brainyx/internal/identity"
	"github.com/illegalcall/brainyx/internal/models"
	"github.com/illegalcall/brainyx/internal/repository"
)

func setupSettings(t *testing.T) (*Service, *repository.RedisStore, *models.User) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := repository.NewRedisStore(rdb)

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	user := &models.User{ID: "u-1", Name: "Dana", Email: "dana@example.com", Credits: 10, Plan: models.PlanFree, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateUser(context.Background(), user))

	return NewService(store).WithClock(func() time.Time { return now.Add(time.Hour) }), store, user
}

func TestGetFallsBackToDefault(t *testing.T) {
	svc, _, user := setupSettings(t)

	assert.Equal(t, identity.DefaultSystemPrompt, svc.Get(user).SystemPrompt)

	user.SystemPrompt = "Responde como pirata."
	assert.Equal(t, "Responde como pirata.", svc.Get(user).SystemPrompt)
}

func TestUpdatePersists(t *testing.T) {
	svc, store, user := setupSettings(t)
	ctx := context.Background()

	resp, err := svc.Update(ctx, user, "Eres un asistente de prueba.")
	require.NoError(t, err)
	assert.Equal(t, "Eres un asistente de prueba.", resp.SystemPrompt)

	stored, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Eres un asistente de prueba.", stored.SystemPrompt)
	assert.Equal(t, user.CreatedAt.Add(time.Hour), stored.UpdatedAt)
}

func TestUpdateLengthBounds(t *testing.T) {
	svc, _, user := setupSettings(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		prompt string
		valid  bool
	}{
		{"too short", "corto", false},
		{"minimum", strings.Repeat("a", MinPromptLength), true},
		{"maximum", strings.Repeat("ñ", MaxPromptLength), true},
		{"too long", strings.Repeat("a", MaxPromptLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, user, tt.prompt)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperr.ErrValidation)
			}
		})
	}
}
