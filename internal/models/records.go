package models

import "time"

// Audit records are write-once. Nothing in the service reads them back.

const (
	RecordFeedback    = "feedback"
	RecordInteraction = "interaction"
	RecordTransaction = "transaction"
	RecordUsage       = "usage"
)

const (
	FeedbackPositive = "positive"
	FeedbackNegative = "negative"
)

const (
	UsageSourceChat = "chat"
	UsageSourceAPI  = "api"
)

const (
	TransactionSourcePurchase = "purchase"
	TransactionSourceStripe   = "stripe"
)

type Feedback struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	MessageID    string    `json:"message_id" db:"message_id"`
	FeedbackType string    `json:"feedback_type" db:"feedback_type"`
	Correction   *string   `json:"correction,omitempty" db:"correction"`
	Timestamp    time.Time `json:"timestamp" db:"created_at"`
}

type Interaction struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	UserMessage    string    `json:"user_message" db:"user_message"`
	AIResponse     string    `json:"ai_response" db:"ai_response"`
	SystemPrompt   string    `json:"system_prompt" db:"system_prompt"`
	Timestamp      time.Time `json:"timestamp" db:"created_at"`
}

type Transaction struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	PlanID    string    `json:"plan_id" db:"plan_id"`
	Amount    int64     `json:"amount" db:"amount"`
	Credits   int64     `json:"credits" db:"credits"`
	Source    string    `json:"source" db:"source"`
	Reference string    `json:"reference,omitempty" db:"reference"`
	Timestamp time.Time `json:"timestamp" db:"created_at"`
}

type Usage struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	Source         string    `json:"source" db:"source"`
	ConversationID string    `json:"conversation_id,omitempty" db:"conversation_id"`
	APIKeyID       string    `json:"api_key_id,omitempty" db:"api_key_id"`
	Credits        int64     `json:"credits" db:"credits"`
	Timestamp      time.Time `json:"timestamp" db:"created_at"`
}
