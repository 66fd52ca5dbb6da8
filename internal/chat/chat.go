// Package chat manages conversations and runs the message pipeline: append
// the user's turn, ask the model, append the reply, then charge for it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/illegalcall/brainyx/internal/apperr"
	"github.com/illegalcall/brainyx/internal/audit"
	"github.com/illegalcall/brainyx/internal/billing"
	"github.com/illegalcall/brainyx/internal/metrics"
	"github.com/illegalcall/brainyx/internal/models"
	"github.com/illegalcall/brainyx/internal/repository"
)

// MaxConversations caps a conversation listing.
const MaxConversations = 100

const (
	msgConversationNotFound = "Conversación no encontrada"
	msgEmptyMessage         = "El mensaje no puede estar vacío"
	msgMissingMessageID     = "message_id es requerido"
	msgInvalidFeedback      = "feedback_type debe ser positive o negative"
)

// Replier produces the assistant turn for a conversation. It never fails;
// provider errors come back as a fallback reply.
type Replier interface {
	Reply(ctx context.Context, user *models.User, conv *models.Conversation, text string) (string, bool)
}

type Service struct {
	store    repository.ConversationStore
	replier  Replier
	billing  *billing.Service
	recorder *audit.Recorder
	chatCost int64
	now      func() time.Time
}

func NewService(store repository.ConversationStore, replier Replier, billingSvc *billing.Service, recorder *audit.Recorder, chatCost int64) *Service {
	return &Service{
		store:    store,
		replier:  replier,
		billing:  billingSvc,
		recorder: recorder,
		chatCost: chatCost,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// List returns the user's conversations, most recently updated first.
func (s *Service) List(ctx context.Context, user *models.User) ([]models.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, user.ID, MaxConversations)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	return convs, nil
}

func (s *Service) Create(ctx context.Context, user *models.User) (*models.Conversation, error) {
	now := s.now().UTC()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) Get(ctx context.Context, user *models.User, id string) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(msgConversationNotFound)
		}
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) Delete(ctx context.Context, user *models.User, id string) error {
	if err := s.store.DeleteConversation(ctx, id, user.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(msgConversationNotFound)
		}
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// AppendMessage persists one message on conv and mirrors it in memory. The
// message time is clamped so updated_at never moves backwards.
func (s *Service) AppendMessage(ctx context.Context, conv *models.Conversation, role, content string) (models.Message, error) {
	at := s.now().UTC()
	if at.Before(conv.UpdatedAt) {
		at = conv.UpdatedAt
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           role,
		Content:        content,
		Timestamp:      at,
	}
	if err := s.store.AppendMessage(ctx, conv.ID, msg); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Message{}, apperr.NotFound(msgConversationNotFound)
		}
		return models.Message{}, fmt.Errorf("failed to append message: %w", err)
	}

	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = at
	return msg, nil
}

// Send runs one exchange in a conversation and returns the assistant message.
// The user's message is kept even when the reply is the fallback text.
func (s *Service) Send(ctx context.Context, user *models.User, conversationID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.BadRequest(msgEmptyMessage)
	}

	conv, err := s.Get(ctx, user, conversationID)
	if err != nil {
		return nil, err
	}
	if err := billing.Gate(user); err != nil {
		return nil, err
	}

	// The model sees the conversation as it was before this turn.
	prior := &models.Conversation{ID: conv.ID, UserID: conv.UserID, Messages: conv.Messages}

	if _, err := s.AppendMessage(ctx, conv, models.RoleUser, content); err != nil {
		return nil, err
	}

	reply, _ := s.replier.Reply(ctx, user, prior, content)

	assistant, err := s.AppendMessage(ctx, conv, models.RoleAssistant, reply)
	if err != nil {
		return nil, err
	}
	metrics.ChatMessages.Inc()

	balance, err := s.billing.Charge(ctx, models.Usage{
		UserID:         user.ID,
		Source:         models.UsageSourceChat,
		ConversationID: conv.ID,
		Credits:        s.chatCost,
	})
	if err != nil {
		return nil, err
	}
	user.Credits = balance

	err = s.recorder.Interaction(ctx, models.Interaction{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		ConversationID: conv.ID,
		UserMessage:    content,
		AIResponse:     reply,
		SystemPrompt:   user.SystemPrompt,
		Timestamp:      assistant.Timestamp,
	})
	if err != nil {
		slog.Error("Failed to record interaction", "conversation_id", conv.ID, "error", err)
	}

	return &assistant, nil
}

// Feedback stores a rating of an assistant message.
func (s *Service) Feedback(ctx context.Context, user *models.User, req models.FeedbackRequest) error {
	if strings.TrimSpace(req.MessageID) == "" {
		return apperr.BadRequest(msgMissingMessageID)
	}
	if req.FeedbackType != models.FeedbackPositive && req.FeedbackType != models.FeedbackNegative {
		return apperr.BadRequest(msgInvalidFeedback)
	}

	err := s.recorder.Feedback(ctx, models.Feedback{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		MessageID:    req.MessageID,
		FeedbackType: req.FeedbackType,
		Correction:   req.Correction,
		Timestamp:    s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}
