package models

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        PublicUser `json:"user"`
}

type UpdateProfileRequest struct {
	Name         *string `json:"name"`
	ProfileImage *string `json:"profile_image"`
}

type SettingsRequest struct {
	SystemPrompt string `json:"system_prompt"`
}

type SettingsResponse struct {
	SystemPrompt string `json:"system_prompt"`
}

type MessageRequest struct {
	Content string `json:"content"`
}

type FeedbackRequest struct {
	MessageID    string  `json:"message_id"`
	FeedbackType string  `json:"feedback_type"`
	Correction   *string `json:"correction"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

type PurchaseRequest struct {
	PlanID string `json:"plan_id"`
}

type PurchaseResponse struct {
	Plan    string `json:"plan"`
	Credits int64  `json:"credits"`
}

type UsageResponse struct {
	Credits int64  `json:"credits"`
	Plan    string `json:"plan"`
}

// PublicChatRequest is the body of POST /v1/chat.
type PublicChatRequest struct {
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt"`
}

type PublicChatResponse struct {
	Response         string `json:"response"`
	CreditsRemaining int64  `json:"credits_remaining"`
}

type CheckoutRequest struct {
	PlanID    string `json:"plan_id"`
	OriginURL string `json:"origin_url"`
}

type CheckoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

type CheckoutStatusResponse struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Credits       int64  `json:"credits"`
}
