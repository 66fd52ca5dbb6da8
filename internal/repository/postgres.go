package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/illegalcall/brainyx/internal/models"
)

const (
	userColumns = `id, name, email, password_hash, system_prompt, profile_image, credits, plan, created_at, updated_at`

	queryInsertUser   = `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	queryUserByID     = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	queryUserByMail   = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	queryUpdateUser   = `UPDATE users SET name = COALESCE($2, name), profile_image = COALESCE($3, profile_image), updated_at = $4 WHERE id = $1 RETURNING ` + userColumns
	queryUpdatePrompt = `UPDATE users SET system_prompt = $2, updated_at = $3 WHERE id = $1`
	queryAddCredits   = `UPDATE users SET credits = credits + $2, plan = $3, updated_at = $4 WHERE id = $1 RETURNING credits`
	queryDebitCredits = `UPDATE users SET credits = GREATEST(credits - $2, 0), updated_at = $3 WHERE id = $1 RETURNING credits`

	queryInsertConversation = `INSERT INTO conversations (id, user_id, created_at, updated_at) VALUES ($1, $2, $3, $4)`
	queryConversation       = `SELECT id, user_id, created_at, updated_at FROM conversations WHERE id = $1 AND user_id = $2`
	queryListConversations  = `SELECT id, user_id, created_at, updated_at FROM conversations WHERE user_id = $1 ORDER BY updated_at DESC LIMIT $2`
	queryDeleteConversation = `DELETE FROM conversations WHERE id = $1 AND user_id = $2`
	queryTouchConversation  = `UPDATE conversations SET updated_at = GREATEST(updated_at, $2) WHERE id = $1`
	queryMessages           = `SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = $1 ORDER BY seq`
	queryMessagesForMany    = `SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = ANY($1) ORDER BY seq`
	queryInsertMessage      = `INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`

	apiKeyColumns         = `id, user_id, name, key_hash, key_preview, is_active, created_at, last_used_at`
	queryInsertAPIKey     = `INSERT INTO api_keys (id, user_id, name, key_hash, key_preview, is_active, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	queryListAPIKeys      = `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 AND is_active ORDER BY created_at DESC`
	queryAPIKeyByHash     = `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`
	queryDeactivateAPIKey = `UPDATE api_keys SET is_active = FALSE WHERE id = $1 AND user_id = $2 AND is_active`
	queryTouchAPIKey      = `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`

	queryInsertFeedback    = `INSERT INTO feedback (id, user_id, message_id, feedback_type, correction, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	queryInsertInteraction = `INSERT INTO interactions (id, user_id, conversation_id, user_message, ai_response, system_prompt, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	queryInsertTransaction = `INSERT INTO transactions (id, user_id, plan_id, amount, credits, source, reference, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	queryInsertUsage       = `INSERT INTO usage_records (id, user_id, source, conversation_id, api_key_id, credits, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	queryInsertCheckout    = `INSERT INTO checkout_sessions (session_id, applied_at) VALUES ($1, $2) ON CONFLICT (session_id) DO NOTHING`
)

// PostgresStore implements Store on top of PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, queryInsertUser,
		u.ID, u.Name, u.Email, u.PasswordHash, u.SystemPrompt, u.ProfileImage,
		u.Credits, u.Plan, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, queryUserByID, id)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, queryUserByMail, email)
}

func (s *PostgresStore) getUser(ctx context.Context, query, arg string) (*models.User, error) {
	var user models.User
	if err := s.db.GetContext(ctx, &user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, id string, update models.ProfileUpdate, at time.Time) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, queryUpdateUser, id, update.Name, update.ProfileImage, at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) UpdateSystemPrompt(ctx context.Context, id, prompt string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, queryUpdatePrompt, id, prompt, at)
	if err != nil {
		return fmt.Errorf("failed to update system prompt: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) AddCredits(ctx context.Context, id string, n int64, plan string, at time.Time) (int64, error) {
	return s.updateCredits(ctx, queryAddCredits, id, n, plan, at)
}

func (s *PostgresStore) DebitCredits(ctx context.Context, id string, n int64, at time.Time) (int64, error) {
	return s.updateCredits(ctx, queryDebitCredits, id, n, at)
}

func (s *PostgresStore) updateCredits(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var balance int64
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to update credits: %w", err)
	}
	return balance, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	_, err := s.db.ExecContext(ctx, queryInsertConversation, conv.ID, conv.UserID, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id, userID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.GetContext(ctx, &conv, queryConversation, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}

	conv.Messages = []models.Message{}
	if err := s.db.SelectContext(ctx, &conv.Messages, queryMessages, id); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return &conv, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	convs := []models.Conversation{}
	if err := s.db.SelectContext(ctx, &convs, queryListConversations, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(convs) == 0 {
		return convs, nil
	}

	ids := make([]string, len(convs))
	index := make(map[string]int, len(convs))
	for i := range convs {
		ids[i] = convs[i].ID
		index[convs[i].ID] = i
		convs[i].Messages = []models.Message{}
	}

	var messages []models.Message
	if err := s.db.SelectContext(ctx, &messages, queryMessagesForMany, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	for _, msg := range messages {
		i := index[msg.ConversationID]
		convs[i].Messages = append(convs[i].Messages, msg)
	}
	return convs, nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, queryDeleteConversation, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return requireAffected(res)
}

// AppendMessage inserts a single message row; concurrent appends to the same
// conversation never overwrite each other.
func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID string, msg models.Message) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, queryTouchConversation, conversationID, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, queryInsertMessage,
		msg.ID, conversationID, msg.Role, msg.Content, msg.Timestamp); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.db.ExecContext(ctx, queryInsertAPIKey,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPreview, key.IsActive, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID string) ([]models.APIKey, error) {
	keys := []models.APIKey{}
	if err := s.db.SelectContext(ctx, &keys, queryListAPIKeys, userID); err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	var key models.APIKey
	if err := s.db.GetContext(ctx, &key, queryAPIKeyByHash, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch api key: %w", err)
	}
	return &key, nil
}

func (s *PostgresStore) DeactivateAPIKey(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, queryDeactivateAPIKey, id, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate api key: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, queryTouchAPIKey, id, at); err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveFeedback(ctx context.Context, rec models.Feedback) error {
	return s.insertRecord(ctx, "feedback", queryInsertFeedback,
		rec.ID, rec.UserID, rec.MessageID, rec.FeedbackType, rec.Correction, rec.Timestamp)
}

func (s *PostgresStore) SaveInteraction(ctx context.Context, rec models.Interaction) error {
	return s.insertRecord(ctx, "interaction", queryInsertInteraction,
		rec.ID, rec.UserID, rec.ConversationID, rec.UserMessage, rec.AIResponse, rec.SystemPrompt, rec.Timestamp)
}

func (s *PostgresStore) SaveTransaction(ctx context.Context, rec models.Transaction) error {
	return s.insertRecord(ctx, "transaction", queryInsertTransaction,
		rec.ID, rec.UserID, rec.PlanID, rec.Amount, rec.Credits, rec.Source, rec.Reference, rec.Timestamp)
}

func (s *PostgresStore) SaveUsage(ctx context.Context, rec models.Usage) error {
	return s.insertRecord(ctx, "usage", queryInsertUsage,
		rec.ID, rec.UserID, rec.Source, rec.ConversationID, rec.APIKeyID, rec.Credits, rec.Timestamp)
}

func (s *PostgresStore) insertRecord(ctx context.Context, kind, query string, args ...interface{}) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %s record: %w", kind, err)
	}
	return nil
}

func (s *PostgresStore) MarkCheckoutApplied(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, queryInsertCheckout, sessionID, at)
	if err != nil {
		return false, fmt.Errorf("failed to record checkout session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
