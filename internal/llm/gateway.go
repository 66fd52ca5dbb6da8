// Package llm forwards chat turns to a language model provider.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/illegalcall/brainyx/internal/metrics"
	"github.com/illegalcall/brainyx/internal/models"
)

// FallbackReply replaces the assistant reply whenever the provider fails.
const FallbackReply = "Lo siento, hubo un error al procesar tu mensaje. Por favor, intenta de nuevo."

const (
	roleUser      = models.RoleUser
	roleAssistant = models.RoleAssistant
)

// Provider opens chat sessions against a language model.
type Provider interface {
	NewSession(key, systemPrompt string) Session
}

// Session accumulates turns. Replay records a prior turn locally without a
// provider call; Send calls the provider and records both sides on success.
type Session interface {
	Replay(role, text string)
	Send(ctx context.Context, text string) (string, error)
}

type Gateway struct {
	provider     Provider
	timeout      time.Duration
	historyLimit int
}

func NewGateway(provider Provider, timeout time.Duration, historyLimit int) *Gateway {
	return &Gateway{
		provider:     provider,
		timeout:      timeout,
		historyLimit: historyLimit,
	}
}

// SessionKey names the provider session for one user's conversation.
func SessionKey(conversationID, userID string) string {
	return fmt.Sprintf("conv-%s-%s", conversationID, userID)
}

// Reply answers text in the context of conv, whose Messages are the turns that
// preceded it. Only user turns among the last historyLimit messages are
// replayed. Provider errors never escape: the fallback reply is returned with
// ok set to false.
func (g *Gateway) Reply(ctx context.Context, user *models.User, conv *models.Conversation, text string) (reply string, ok bool) {
	session := g.provider.NewSession(SessionKey(conv.ID, user.ID), user.SystemPrompt)

	history := conv.Messages
	if len(history) > g.historyLimit {
		history = history[len(history)-g.historyLimit:]
	}
	for _, msg := range history {
		if msg.Role == roleUser {
			session.Replay(roleUser, msg.Content)
		}
	}

	return g.send(ctx, session, "conversation_id", conv.ID, text)
}

// Complete answers a single message with no stored history.
func (g *Gateway) Complete(ctx context.Context, sessionKey, systemPrompt, text string) (reply string, ok bool) {
	session := g.provider.NewSession(sessionKey, systemPrompt)
	return g.send(ctx, session, "session", sessionKey, text)
}

func (g *Gateway) send(ctx context.Context, session Session, attrKey, attrVal, text string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reply, err := session.Send(ctx, text)
	if err != nil {
		slog.Error("Error getting AI response", attrKey, attrVal, "error", err)
		metrics.LLMFallbacks.Inc()
		return FallbackReply, false
	}
	return reply, true
}
