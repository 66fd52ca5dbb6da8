package repository

import (
	"context"
	"time"

	"github.com/illegalcall/brainyx/internal/models"
)

// timeoutStore bounds every call to the wrapped store.
type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout wraps store so that each call runs under its own deadline
// derived from the caller's context. A non-positive d returns store as is.
func WithTimeout(store Store, d time.Duration) Store {
	if d <= 0 {
		return store
	}
	return &timeoutStore{next: store, timeout: d}
}

func (s *timeoutStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *timeoutStore) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.Ping(ctx)
}

func (s *timeoutStore) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.CreateUser(ctx, user)
}

func (s *timeoutStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.GetUserByID(ctx, id)
}

func (s *timeoutStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.GetUserByEmail(ctx, email)
}

func (s *timeoutStore) UpdateUserProfile(ctx context.Context, id string, update models.ProfileUpdate, at time.Time) (*models.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.UpdateUserProfile(ctx, id, update, at)
}

func (s *timeoutStore) UpdateSystemPrompt(ctx context.Context, id, prompt string, at time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.UpdateSystemPrompt(ctx, id, prompt, at)
}

func (s *timeoutStore) AddCredits(ctx context.Context, id string, n int64, plan string, at time.Time) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.AddCredits(ctx, id, n, plan, at)
}

func (s *timeoutStore) DebitCredits(ctx context.Context, id string, n int64, at time.Time) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.DebitCredits(ctx, id, n, at)
}

func (s *timeoutStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.CreateConversation(ctx, conv)
}

func (s *timeoutStore) GetConversation(ctx context.Context, id, userID string) (*models.Conversation, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.GetConversation(ctx, id, userID)
}

func (s *timeoutStore) ListConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.ListConversations(ctx, userID, limit)
}

func (s *timeoutStore) DeleteConversation(ctx context.Context, id, userID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.DeleteConversation(ctx, id, userID)
}

func (s *timeoutStore) AppendMessage(ctx context.Context, conversationID string, msg models.Message) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.AppendMessage(ctx, conversationID, msg)
}

func (s *timeoutStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.CreateAPIKey(ctx, key)
}

func (s *timeoutStore) ListAPIKeys(ctx context.Context, userID string) ([]models.APIKey, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.ListAPIKeys(ctx, userID)
}

func (s *timeoutStore) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.GetAPIKeyByHash(ctx, hash)
}

func (s *timeoutStore) DeactivateAPIKey(ctx context.Context, id, userID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.DeactivateAPIKey(ctx, id, userID)
}

func (s *timeoutStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.TouchAPIKey(ctx, id, at)
}

func (s *timeoutStore) SaveFeedback(ctx context.Context, rec models.Feedback) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.SaveFeedback(ctx, rec)
}

func (s *timeoutStore) SaveInteraction(ctx context.Context, rec models.Interaction) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.SaveInteraction(ctx, rec)
}

func (s *timeoutStore) SaveTransaction(ctx context.Context, rec models.Transaction) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.SaveTransaction(ctx, rec)
}

func (s *timeoutStore) SaveUsage(ctx context.Context, rec models.Usage) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.SaveUsage(ctx, rec)
}

func (s *timeoutStore) MarkCheckoutApplied(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.next.MarkCheckoutApplied(ctx, sessionID, at)
}
