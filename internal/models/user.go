package models

import "time"

const PlanFree = "free"

// User is the persisted account record.
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"` // lowercased
	PasswordHash string    `json:"-" db:"password_hash"`
	SystemPrompt string    `json:"system_prompt" db:"system_prompt"`
	ProfileImage string    `json:"profile_image" db:"profile_image"`
	Credits      int64     `json:"credits" db:"credits"`
	Plan         string    `json:"plan" db:"plan"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// PublicUser is the projection of a User returned to clients.
type PublicUser struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	MaskedEmail  string    `json:"masked_email"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	ProfileImage string    `json:"profile_image,omitempty"`
	Credits      int64     `json:"credits"`
	Plan         string    `json:"plan"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProfileUpdate holds the optional fields of a profile change. Nil means
// "leave as is".
type ProfileUpdate struct {
	Name         *string
	ProfileImage *string
}
