package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/brainyx/internal/models"
)

// Key layout. Timestamps inside hashes are Unix microseconds so Lua scripts
// can compare them exactly.
const (
	keyUser         = "user:%s"
	keyUserEmail    = "user:email:%s"
	keyUserConvs    = "user:%s:convs"
	keyUserAPIKeys  = "user:%s:apikeys"
	keyConversation = "conv:%s"
	keyConvMessages = "conv:%s:messages"
	keyAPIKey       = "apikey:%s"
	keyAPIKeyHash   = "apikey:hash:%s"
	keyRecords      = "records:%s"
	keyCheckout     = "checkout:%s"
)

// debitScript subtracts ARGV[1] from the credits field, flooring at zero.
// Returns -1 when the user does not exist.
var debitScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'credits')
if not cur then return -1 end
local n = tonumber(cur) - tonumber(ARGV[1])
if n < 0 then n = 0 end
redis.call('HSET', KEYS[1], 'credits', n, 'updated_at', ARGV[2])
return n
`)

// addCreditsScript adds ARGV[1] credits and sets the plan. Returns -1 when the
// user does not exist.
var addCreditsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local n = redis.call('HINCRBY', KEYS[1], 'credits', ARGV[1])
redis.call('HSET', KEYS[1], 'plan', ARGV[2], 'updated_at', ARGV[3])
return n
`)

// appendScript pushes one message and moves updated_at forward, never back.
// KEYS[3] is the owner's conversation index; ARGV[3] must still own KEYS[1].
var appendScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'user_id') ~= ARGV[3] then return 0 end
redis.call('RPUSH', KEYS[2], ARGV[1])
local score = ARGV[2]
local cur = redis.call('HGET', KEYS[1], 'updated_at')
if cur and tonumber(cur) >= tonumber(ARGV[2]) then
  score = cur
else
  redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
end
redis.call('ZADD', KEYS[3], score, ARGV[4])
return 1
`)

// RedisStore implements Store on a Redis server.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, fmt.Sprintf(keyUser, u.ID), map[string]interface{}{
			"id":            u.ID,
			"name":          u.Name,
			"email":         u.Email,
			"password_hash": u.PasswordHash,
			"system_prompt": u.SystemPrompt,
			"profile_image": u.ProfileImage,
			"credits":       u.Credits,
			"plan":          u.Plan,
			"created_at":    micros(u.CreatedAt),
			"updated_at":    micros(u.UpdatedAt),
		})
		pipe.Set(ctx, fmt.Sprintf(keyUserEmail, u.Email), u.ID, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}

func (s *RedisStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	fields, err := s.rdb.HGetAll(ctx, fmt.Sprintf(keyUser, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return userFromHash(fields)
}

func (s *RedisStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	id, err := s.rdb.Get(ctx, fmt.Sprintf(keyUserEmail, email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *RedisStore) UpdateUserProfile(ctx context.Context, id string, update models.ProfileUpdate, at time.Time) (*models.User, error) {
	key := fmt.Sprintf(keyUser, id)
	if err := s.requireKey(ctx, key); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{"updated_at": micros(at)}
	if update.Name != nil {
		fields["name"] = *update.Name
	}
	if update.ProfileImage != nil {
		fields["profile_image"] = *update.ProfileImage
	}
	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *RedisStore) UpdateSystemPrompt(ctx context.Context, id, prompt string, at time.Time) error {
	key := fmt.Sprintf(keyUser, id)
	if err := s.requireKey(ctx, key); err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, key, "system_prompt", prompt, "updated_at", micros(at)).Err(); err != nil {
		return fmt.Errorf("failed to update system prompt: %w", err)
	}
	return nil
}

func (s *RedisStore) AddCredits(ctx context.Context, id string, n int64, plan string, at time.Time) (int64, error) {
	balance, err := addCreditsScript.Run(ctx, s.rdb, []string{fmt.Sprintf(keyUser, id)}, n, plan, micros(at)).Int64()
	return scriptBalance(balance, err)
}

func (s *RedisStore) DebitCredits(ctx context.Context, id string, n int64, at time.Time) (int64, error) {
	balance, err := debitScript.Run(ctx, s.rdb, []string{fmt.Sprintf(keyUser, id)}, n, micros(at)).Int64()
	return scriptBalance(balance, err)
}

func scriptBalance(balance int64, err error) (int64, error) {
	if err != nil {
		return 0, fmt.Errorf("failed to update credits: %w", err)
	}
	if balance < 0 {
		return 0, ErrNotFound
	}
	return balance, nil
}

func (s *RedisStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, fmt.Sprintf(keyConversation, conv.ID), map[string]interface{}{
			"id":         conv.ID,
			"user_id":    conv.UserID,
			"created_at": micros(conv.CreatedAt),
			"updated_at": micros(conv.UpdatedAt),
		})
		pipe.ZAdd(ctx, fmt.Sprintf(keyUserConvs, conv.UserID), redis.Z{
			Score:  float64(conv.UpdatedAt.UnixMicro()),
			Member: conv.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) GetConversation(ctx context.Context, id, userID string) (*models.Conversation, error) {
	conv, err := s.loadConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrNotFound
	}
	return conv, nil
}

func (s *RedisStore) loadConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var (
		header *redis.MapStringStringCmd
		list   *redis.StringSliceCmd
	)
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		header = pipe.HGetAll(ctx, fmt.Sprintf(keyConversation, id))
		list = pipe.LRange(ctx, fmt.Sprintf(keyConvMessages, id), 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}

	fields := header.Val()
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	conv := &models.Conversation{
		ID:        fields["id"],
		UserID:    fields["user_id"],
		CreatedAt: fromMicros(fields["created_at"]),
		UpdatedAt: fromMicros(fields["updated_at"]),
		Messages:  make([]models.Message, 0, len(list.Val())),
	}
	for _, raw := range list.Val() {
		var msg models.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		msg.ConversationID = conv.ID
		conv.Messages = append(conv.Messages, msg)
	}
	return conv, nil
}

func (s *RedisStore) ListConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	ids, err := s.rdb.ZRevRange(ctx, fmt.Sprintf(keyUserConvs, userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	convs := make([]models.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.loadConversation(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, nil
}

func (s *RedisStore) DeleteConversation(ctx context.Context, id, userID string) error {
	owner, err := s.rdb.HGet(ctx, fmt.Sprintf(keyConversation, id), "user_id").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to fetch conversation: %w", err)
	}
	if owner == "" || owner != userID {
		return ErrNotFound
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, fmt.Sprintf(keyConversation, id), fmt.Sprintf(keyConvMessages, id))
		pipe.ZRem(ctx, fmt.Sprintf(keyUserConvs, userID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// AppendMessage pushes onto the conversation's message list inside a script,
// so concurrent appends cannot drop each other.
func (s *RedisStore) AppendMessage(ctx context.Context, conversationID string, msg models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	convKey := fmt.Sprintf(keyConversation, conversationID)
	owner, err := s.rdb.HGet(ctx, convKey, "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load conversation owner: %w", err)
	}

	keys := []string{convKey, fmt.Sprintf(keyConvMessages, conversationID), fmt.Sprintf(keyUserConvs, owner)}
	ok, err := appendScript.Run(ctx, s.rdb, keys,
		string(payload), micros(msg.Timestamp), owner, conversationID).Int64()
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if ok == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, fmt.Sprintf(keyAPIKey, key.ID), map[string]interface{}{
			"id":           key.ID,
			"user_id":      key.UserID,
			"name":         key.Name,
			"key_hash":     key.KeyHash,
			"key_preview":  key.KeyPreview,
			"is_active":    key.IsActive,
			"created_at":   micros(key.CreatedAt),
			"last_used_at": "",
		})
		pipe.Set(ctx, fmt.Sprintf(keyAPIKeyHash, key.KeyHash), key.ID, 0)
		pipe.ZAdd(ctx, fmt.Sprintf(keyUserAPIKeys, key.UserID), redis.Z{
			Score:  float64(key.CreatedAt.UnixMicro()),
			Member: key.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store api key: %w", err)
	}
	return nil
}

func (s *RedisStore) ListAPIKeys(ctx context.Context, userID string) ([]models.APIKey, error) {
	ids, err := s.rdb.ZRevRange(ctx, fmt.Sprintf(keyUserAPIKeys, userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}

	keys := make([]models.APIKey, 0, len(ids))
	for _, id := range ids {
		key, err := s.getAPIKey(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if key.IsActive {
			keys = append(keys, *key)
		}
	}
	return keys, nil
}

func (s *RedisStore) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	id, err := s.rdb.Get(ctx, fmt.Sprintf(keyAPIKeyHash, hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	return s.getAPIKey(ctx, id)
}

func (s *RedisStore) getAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	fields, err := s.rdb.HGetAll(ctx, fmt.Sprintf(keyAPIKey, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch api key: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	active, _ := strconv.ParseBool(fields["is_active"])
	key := &models.APIKey{
		ID:         fields["id"],
		UserID:     fields["user_id"],
		Name:       fields["name"],
		KeyHash:    fields["key_hash"],
		KeyPreview: fields["key_preview"],
		IsActive:   active,
		CreatedAt:  fromMicros(fields["created_at"]),
	}
	if raw := fields["last_used_at"]; raw != "" {
		lastUsed := fromMicros(raw)
		key.LastUsedAt = &lastUsed
	}
	return key, nil
}

func (s *RedisStore) DeactivateAPIKey(ctx context.Context, id, userID string) error {
	key, err := s.getAPIKey(ctx, id)
	if err != nil {
		return err
	}
	if key.UserID != userID || !key.IsActive {
		return ErrNotFound
	}
	if err := s.rdb.HSet(ctx, fmt.Sprintf(keyAPIKey, id), "is_active", false).Err(); err != nil {
		return fmt.Errorf("failed to deactivate api key: %w", err)
	}
	return nil
}

func (s *RedisStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	if err := s.rdb.HSet(ctx, fmt.Sprintf(keyAPIKey, id), "last_used_at", micros(at)).Err(); err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveFeedback(ctx context.Context, rec models.Feedback) error {
	return s.pushRecord(ctx, models.RecordFeedback, rec)
}

func (s *RedisStore) SaveInteraction(ctx context.Context, rec models.Interaction) error {
	return s.pushRecord(ctx, models.RecordInteraction, rec)
}

func (s *RedisStore) SaveTransaction(ctx context.Context, rec models.Transaction) error {
	return s.pushRecord(ctx, models.RecordTransaction, rec)
}

func (s *RedisStore) SaveUsage(ctx context.Context, rec models.Usage) error {
	return s.pushRecord(ctx, models.RecordUsage, rec)
}

func (s *RedisStore) pushRecord(ctx context.Context, kind string, rec interface{}) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", kind, err)
	}
	if err := s.rdb.RPush(ctx, fmt.Sprintf(keyRecords, kind), payload).Err(); err != nil {
		return fmt.Errorf("failed to store %s record: %w", kind, err)
	}
	return nil
}

func (s *RedisStore) MarkCheckoutApplied(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	first, err := s.rdb.SetNX(ctx, fmt.Sprintf(keyCheckout, sessionID), micros(at), 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record checkout session: %w", err)
	}
	return first, nil
}

func (s *RedisStore) requireKey(ctx context.Context, key string) error {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func userFromHash(fields map[string]string) (*models.User, error) {
	credits, err := strconv.ParseInt(fields["credits"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid credits for user %s: %w", fields["id"], err)
	}
	return &models.User{
		ID:           fields["id"],
		Name:         fields["name"],
		Email:        fields["email"],
		PasswordHash: fields["password_hash"],
		SystemPrompt: fields["system_prompt"],
		ProfileImage: fields["profile_image"],
		Credits:      credits,
		Plan:         fields["plan"],
		CreatedAt:    fromMicros(fields["created_at"]),
		UpdatedAt:    fromMicros(fields["updated_at"]),
	}, nil
}

func micros(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func fromMicros(raw string) time.Time {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}
