// Package repository is the data access layer. Services depend on the Store
// interface only; the backing store is picked at startup.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/illegalcall/brainyx/internal/models"
)

// ErrNotFound is returned for absent records and for records owned by another
// user. Callers cannot tell the two apart.
var ErrNotFound = errors.New("record not found")

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, id string, update models.ProfileUpdate, at time.Time) (*models.User, error)
	UpdateSystemPrompt(ctx context.Context, id, prompt string, at time.Time) error
	// AddCredits adds n credits and sets the plan in one write.
	AddCredits(ctx context.Context, id string, n int64, plan string, at time.Time) (int64, error)
	// DebitCredits subtracts n credits without going below zero and returns
	// the new balance.
	DebitCredits(ctx context.Context, id string, n int64, at time.Time) (int64, error)
}

type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id, userID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error)
	DeleteConversation(ctx context.Context, id, userID string) error
	// AppendMessage adds one message and bumps the conversation's updated_at
	// without rewriting the rest of the conversation.
	AppendMessage(ctx context.Context, conversationID string, msg models.Message) error
}

type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID string) ([]models.APIKey, error)
	GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)
	DeactivateAPIKey(ctx context.Context, id, userID string) error
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

type RecordStore interface {
	SaveFeedback(ctx context.Context, rec models.Feedback) error
	SaveInteraction(ctx context.Context, rec models.Interaction) error
	SaveTransaction(ctx context.Context, rec models.Transaction) error
	SaveUsage(ctx context.Context, rec models.Usage) error
	// MarkCheckoutApplied records a payment session and reports whether this
	// was the first time it was seen.
	MarkCheckoutApplied(ctx context.Context, sessionID string, at time.Time) (bool, error)
}

// Store is everything the services need from persistence.
type Store interface {
	UserStore
	ConversationStore
	APIKeyStore
	RecordStore
	Ping(ctx context.Context) error
}
