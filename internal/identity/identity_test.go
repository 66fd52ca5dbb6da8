package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/brainyx/internal/apperr"
	"github.com/illegalcall/brainyx/internal/auth"
	"github.com/illegalcall/brainyx/internal/models"
	"github.com/illegalcall/brainyx/internal/repository"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupService(t *testing.T) (*Service, *APIKeys, *repository.RedisStore, *clock) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := repository.NewRedisStore(rdb)
	clk := &clock{now: testNow}
	codec := auth.NewTokenCodec("test-secret", time.Hour).WithClock(clk.Now)

	return NewService(store, codec, 1000).WithClock(clk.Now), NewAPIKeys(store).WithClock(clk.Now), store, clk
}

func register(t *testing.T, svc *Service, email string) *models.TokenResponse {
	t.Helper()
	resp, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Dana", Email: email, Password: "secret123"})
	require.NoError(t, err)
	return resp
}

func TestRegister(t *testing.T) {
	svc, _, store, _ := setupService(t)

	resp := register(t, svc, "  Dana@Example.com ")
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, "dana@example.com", resp.User.Email)
	assert.Equal(t, "d****@example.com", resp.User.MaskedEmail)
	assert.Equal(t, int64(1000), resp.User.Credits)
	assert.Equal(t, models.PlanFree, resp.User.Plan)
	assert.Equal(t, DefaultSystemPrompt, resp.User.SystemPrompt)

	stored, err := store.GetUserByEmail(context.Background(), "dana@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.PasswordHash)
	assert.True(t, auth.CheckPassword(stored.PasswordHash, "secret123"))
}

func TestRegisterDuplicateEmailIsCaseInsensitive(t *testing.T) {
	svc, _, _, _ := setupService(t)
	register(t, svc, "dana@example.com")

	_, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Otra", Email: "DANA@example.com", Password: "secret123"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	msg, ok := apperr.Message(err)
	assert.True(t, ok)
	assert.Equal(t, "El correo electrónico ya está registrado", msg)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _, _ := setupService(t)

	tests := []struct {
		name string
		req  models.RegisterRequest
	}{
		{"short name", models.RegisterRequest{Name: "D", Email: "a@b.com", Password: "secret123"}},
		{"bad email", models.RegisterRequest{Name: "Dana", Email: "not-an-email", Password: "secret123"}},
		{"display name email", models.RegisterRequest{Name: "Dana", Email: "Dana <dana@b.com>", Password: "secret123"}},
		{"short password", models.RegisterRequest{Name: "Dana", Email: "a@b.com", Password: "12345"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.req)
			assert.ErrorIs(t, err, apperr.ErrBadRequest)
		})
	}
}

func TestLogin(t *testing.T) {
	svc, _, _, _ := setupService(t)
	registered := register(t, svc, "dana@example.com")

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "DANA@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, resp.User.ID)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "dana@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	msg, _ := apperr.Message(err)
	assert.Equal(t, "Credenciales inválidas", msg)
}

func TestResolveFromToken(t *testing.T) {
	svc, _, _, clk := setupService(t)
	resp := register(t, svc, "dana@example.com")
	ctx := context.Background()

	user, err := svc.ResolveFromToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, user.ID)

	clk.Advance(time.Hour - time.Second)
	_, err = svc.ResolveFromToken(ctx, resp.AccessToken)
	assert.NoError(t, err)

	clk.Advance(time.Second)
	_, err = svc.ResolveFromToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	msg, _ := apperr.Message(err)
	assert.Equal(t, "Token expirado", msg)

	_, err = svc.ResolveFromToken(ctx, "garbage")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestResolveFromTokenUnknownUser(t *testing.T) {
	svc, _, _, _ := setupService(t)

	token, _, err := svc.codec.Issue("ghost")
	require.NoError(t, err)

	_, err = svc.ResolveFromToken(context.Background(), token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestResolveFromAPIKey(t *testing.T) {
	svc, keys, store, clk := setupService(t)
	ctx := context.Background()
	resp := register(t, svc, "dana@example.com")
	owner, err := store.GetUserByID(ctx, resp.User.ID)
	require.NoError(t, err)

	created, err := keys.Create(ctx, owner, "ci")
	require.NoError(t, err)
	assert.True(t, auth.LooksLikeAPIKey(created.Key))

	clk.Advance(time.Minute)
	user, key, err := svc.ResolveFromAPIKey(ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, user.ID)
	assert.Equal(t, created.ID, key.ID)

	stored, err := store.GetAPIKeyByHash(ctx, auth.HashAPIKey(created.Key))
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)
	assert.Equal(t, testNow.Add(time.Minute), *stored.LastUsedAt)

	for _, raw := range []string{"", "byx_unknown", "no-prefix-at-all"} {
		_, _, err := svc.ResolveFromAPIKey(ctx, raw)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized, raw)
	}

	require.NoError(t, keys.Revoke(ctx, owner, created.ID))
	_, _, err = svc.ResolveFromAPIKey(ctx, created.Key)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestResolveFromAPIKeyWithoutCredits(t *testing.T) {
	svc, keys, store, _ := setupService(t)
	ctx := context.Background()
	resp := register(t, svc, "dana@example.com")
	owner, err := store.GetUserByID(ctx, resp.User.ID)
	require.NoError(t, err)

	created, err := keys.Create(ctx, owner, "ci")
	require.NoError(t, err)

	_, err = store.DebitCredits(ctx, owner.ID, 1000, testNow)
	require.NoError(t, err)

	_, _, err = svc.ResolveFromAPIKey(ctx, created.Key)
	assert.ErrorIs(t, err, apperr.ErrPaymentRequired)
}

func TestUpdateProfile(t *testing.T) {
	svc, _, store, clk := setupService(t)
	ctx := context.Background()
	resp := register(t, svc, "dana@example.com")
	user, err := store.GetUserByID(ctx, resp.User.ID)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	name := "  Dana Ruiz "
	updated, err := svc.UpdateProfile(ctx, user, models.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Dana Ruiz", updated.Name)
	assert.Equal(t, testNow.Add(time.Minute), updated.UpdatedAt)

	blank := "   "
	unchanged, err := svc.UpdateProfile(ctx, updated, models.ProfileUpdate{Name: &blank})
	require.NoError(t, err)
	assert.Equal(t, "Dana Ruiz", unchanged.Name)

	short := "D"
	_, err = svc.UpdateProfile(ctx, updated, models.ProfileUpdate{Name: &short})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestPublicUserHidesSecrets(t *testing.T) {
	u := &models.User{ID: "u-1", Name: "Dana", Email: "ab@x.com", PasswordHash: "hash", Credits: 5, Plan: "free"}
	pub := PublicUser(u)
	assert.Equal(t, "a****@x.com", pub.MaskedEmail)
	assert.Equal(t, int64(5), pub.Credits)
}
