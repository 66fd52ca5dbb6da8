package models

import "time"

// APIKey is stored without its raw secret; only the hash and a preview are kept.
type APIKey struct {
	ID         string     `json:"id" db:"id"`
	UserID     string     `json:"-" db:"user_id"`
	Name       string     `json:"name" db:"name"`
	KeyHash    string     `json:"-" db:"key_hash"`
	KeyPreview string     `json:"key_preview" db:"key_preview"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at" db:"last_used_at"`
}

// CreatedAPIKey is returned exactly once, when the key is issued.
type CreatedAPIKey struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Key        string    `json:"key"`
	KeyPreview string    `json:"key_preview"`
	CreatedAt  time.Time `json:"created_at"`
}
