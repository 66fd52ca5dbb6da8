package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illegalcall/brainyx/internal/models"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewRedisStore(rdb), mr
}

func seedRedisUser(t *testing.T, store *RedisStore, id string, credits int64) *models.User {
	t.Helper()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	user := &models.User{
		ID: id, Name: "Dana", Email: id + "@example.com", PasswordHash: "hash",
		SystemPrompt: "prompt", Credits: credits, Plan: models.PlanFree, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func TestRedisUserRoundTrip(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	user := seedRedisUser(t, store, "u-1", 1000)

	byID, err := store.GetUserByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, user, byID)

	byEmail, err := store.GetUserByEmail(ctx, "u-1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", byEmail.ID)

	_, err = store.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisUpdateProfileAndPrompt(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	seedRedisUser(t, store, "u-1", 10)
	at := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	name := "Dana R."
	updated, err := store.UpdateUserProfile(ctx, "u-1", models.ProfileUpdate{Name: &name}, at)
	require.NoError(t, err)
	assert.Equal(t, "Dana R.", updated.Name)
	assert.Equal(t, "", updated.ProfileImage)
	assert.Equal(t, at, updated.UpdatedAt)

	require.NoError(t, store.UpdateSystemPrompt(ctx, "u-1", "Responde en verso.", at))
	got, err := store.GetUserByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Responde en verso.", got.SystemPrompt)

	_, err = store.UpdateUserProfile(ctx, "missing", models.ProfileUpdate{Name: &name}, at)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdateSystemPrompt(ctx, "missing", "x", at), ErrNotFound)
}

func TestRedisCredits(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	seedRedisUser(t, store, "u-1", 3)
	at := time.Now()

	balance, err := store.DebitCredits(ctx, "u-1", 1, at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), balance)

	balance, err = store.DebitCredits(ctx, "u-1", 5, at)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance, "balance never goes below zero")

	balance, err = store.AddCredits(ctx, "u-1", 100000, "estandar", at)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), balance)

	got, err := store.GetUserByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "estandar", got.Plan)
	assert.Equal(t, int64(100000), got.Credits)

	_, err = store.DebitCredits(ctx, "missing", 1, at)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.AddCredits(ctx, "missing", 1, "premium", at)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisConcurrentDebits(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	seedRedisUser(t, store, "u-1", 50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.DebitCredits(ctx, "u-1", 1, time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.GetUserByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), got.Credits)
}

func TestRedisConversationLifecycle(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	conv := &models.Conversation{ID: "c-1", UserID: "u-1", CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, store.CreateConversation(ctx, conv))

	require.NoError(t, store.AppendMessage(ctx, "c-1", models.Message{ID: "m-1", Role: models.RoleUser, Content: "hola", Timestamp: t0.Add(time.Second)}))
	require.NoError(t, store.AppendMessage(ctx, "c-1", models.Message{ID: "m-2", Role: models.RoleAssistant, Content: "¡Hola!", Timestamp: t0.Add(2 * time.Second)}))

	got, err := store.GetConversation(ctx, "c-1", "u-1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "m-1", got.Messages[0].ID)
	assert.Equal(t, models.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "c-1", got.Messages[1].ConversationID)
	assert.Equal(t, t0.Add(2*time.Second), got.UpdatedAt)

	_, err = store.GetConversation(ctx, "c-1", "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.DeleteConversation(ctx, "c-1", "someone-else"), ErrNotFound)
	require.NoError(t, store.DeleteConversation(ctx, "c-1", "u-1"))

	_, err = store.GetConversation(ctx, "c-1", "u-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteConversation(ctx, "c-1", "u-1"), ErrNotFound)
}

func TestRedisAppendKeepsUpdatedAtMonotonic(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateConversation(ctx, &models.Conversation{ID: "c-1", UserID: "u-1", CreatedAt: t0, UpdatedAt: t0}))
	require.NoError(t, store.AppendMessage(ctx, "c-1", models.Message{ID: "m-1", Role: models.RoleUser, Content: "a", Timestamp: t0.Add(time.Minute)}))
	require.NoError(t, store.AppendMessage(ctx, "c-1", models.Message{ID: "m-2", Role: models.RoleUser, Content: "b", Timestamp: t0.Add(time.Second)}))

	got, err := store.GetConversation(ctx, "c-1", "u-1")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute), got.UpdatedAt)
	assert.Len(t, got.Messages, 2)
}

func TestRedisAppendToMissingConversation(t *testing.T) {
	store, mr := setupRedisStore(t)

	err := store.AppendMessage(context.Background(), "nope", models.Message{ID: "m-1", Role: models.RoleUser, Content: "x", Timestamp: time.Now()})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("conv:nope:messages"))
}

func TestRedisAppendIndexesOwnerConversations(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateConversation(ctx, &models.Conversation{ID: "c-1", UserID: "u-1", CreatedAt: t0, UpdatedAt: t0}))

	at := t0.Add(time.Hour)
	require.NoError(t, store.AppendMessage(ctx, "c-1", models.Message{ID: "m-1", Role: models.RoleUser, Content: "hola", Timestamp: at}))

	score, err := mr.ZScore("user:u-1:convs", "c-1")
	require.NoError(t, err)
	assert.Equal(t, float64(at.UnixMicro()), score)

	// A stale owner is refused and leaves every key untouched.
	keys := []string{"conv:c-1", "conv:c-1:messages", "user:u-2:convs"}
	ok, err := appendScript.Run(ctx, store.rdb, keys, `{"id":"m-2"}`, micros(at.Add(time.Hour)), "u-2", "c-1").Int64()
	require.NoError(t, err)
	assert.Zero(t, ok)
	assert.False(t, mr.Exists("user:u-2:convs"))

	length, err := store.rdb.LLen(ctx, "conv:c-1:messages").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestRedisConcurrentAppends(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	t0 := time.Now().UTC()
	require.NoError(t, store.CreateConversation(ctx, &models.Conversation{ID: "c-1", UserID: "u-1", CreatedAt: t0, UpdatedAt: t0}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := models.Message{ID: fmt.Sprintf("m-%d", i), Role: models.RoleUser, Content: "hi", Timestamp: time.Now().UTC()}
			assert.NoError(t, store.AppendMessage(ctx, "c-1", msg))
		}(i)
	}
	wg.Wait()

	got, err := store.GetConversation(ctx, "c-1", "u-1")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 10)
}

func TestRedisListConversationsOrderAndLimit(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"c-1", "c-2", "c-3"} {
		at := t0.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.CreateConversation(ctx, &models.Conversation{ID: id, UserID: "u-1", CreatedAt: at, UpdatedAt: at}))
	}
	require.NoError(t, store.CreateConversation(ctx, &models.Conversation{ID: "c-x", UserID: "u-2", CreatedAt: t0, UpdatedAt: t0}))

	// Appending to the oldest conversation moves it to the front.
	require.NoError(t, store.AppendMessage(ctx, "c-1", models.Message{ID: "m-1", Role: models.RoleUser, Content: "hola", Timestamp: t0.Add(time.Hour)}))

	convs, err := store.ListConversations(ctx, "u-1", 100)
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, "c-1", convs[0].ID)
	assert.Equal(t, "c-3", convs[1].ID)
	assert.Equal(t, "c-2", convs[2].ID)

	limited, err := store.ListConversations(ctx, "u-1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := store.ListConversations(ctx, "u-3", 100)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRedisAPIKeys(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	key := &models.APIKey{ID: "k-1", UserID: "u-1", Name: "ci", KeyHash: "h1", KeyPreview: "byx_abcdefgh...", IsActive: true, CreatedAt: t0}
	require.NoError(t, store.CreateAPIKey(ctx, key))
	require.NoError(t, store.CreateAPIKey(ctx, &models.APIKey{ID: "k-2", UserID: "u-1", Name: "cli", KeyHash: "h2", KeyPreview: "byx_zzzzzzzz...", IsActive: true, CreatedAt: t0.Add(time.Minute)}))

	got, err := store.GetAPIKeyByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "k-1", got.ID)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.LastUsedAt)

	require.NoError(t, store.TouchAPIKey(ctx, "k-1", t0.Add(time.Hour)))
	got, err = store.GetAPIKeyByHash(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.Equal(t, t0.Add(time.Hour), *got.LastUsedAt)

	assert.ErrorIs(t, store.DeactivateAPIKey(ctx, "k-1", "u-2"), ErrNotFound)
	require.NoError(t, store.DeactivateAPIKey(ctx, "k-1", "u-1"))
	assert.ErrorIs(t, store.DeactivateAPIKey(ctx, "k-1", "u-1"), ErrNotFound)

	got, err = store.GetAPIKeyByHash(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	keys, err := store.ListAPIKeys(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "k-2", keys[0].ID)

	_, err = store.GetAPIKeyByHash(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisRecordsAndCheckout(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()
	at := time.Now()

	require.NoError(t, store.SaveFeedback(ctx, models.Feedback{ID: "f-1", UserID: "u-1", MessageID: "m-1", FeedbackType: models.FeedbackPositive, Timestamp: at}))
	require.NoError(t, store.SaveUsage(ctx, models.Usage{ID: "us-1", UserID: "u-1", Source: models.UsageSourceAPI, Credits: 1, Timestamp: at}))
	require.NoError(t, store.SaveUsage(ctx, models.Usage{ID: "us-2", UserID: "u-1", Source: models.UsageSourceChat, Credits: 1, Timestamp: at}))

	feedback, err := mr.List("records:feedback")
	require.NoError(t, err)
	assert.Len(t, feedback, 1)
	usage, err := mr.List("records:usage")
	require.NoError(t, err)
	assert.Len(t, usage, 2)

	first, err := store.MarkCheckoutApplied(ctx, "cs_test_1", at)
	require.NoError(t, err)
	assert.True(t, first)
	again, err := store.MarkCheckoutApplied(ctx, "cs_test_1", at)
	require.NoError(t, err)
	assert.False(t, again)

	assert.NoError(t, store.Ping(ctx))
}
