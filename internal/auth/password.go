// Package auth holds the credential primitives: password and API key hashing,
// session tokens and email masking.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyPrefix marks every raw API key handed out to users.
	APIKeyPrefix = "byx_"

	apiKeyRandomBytes = 32
	apiKeyPreviewLen  = 12
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateAPIKey returns a new raw key and the preview shown in listings.
func GenerateAPIKey() (raw string, preview string, err error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate api key: %w", err)
	}
	raw = APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return raw, raw[:apiKeyPreviewLen] + "...", nil
}

// HashAPIKey is deterministic so a presented key can be looked up by its hash.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// LooksLikeAPIKey reports whether raw carries the API key prefix.
func LooksLikeAPIKey(raw string) bool {
	return strings.HasPrefix(raw, APIKeyPrefix) && len(raw) > len(APIKeyPrefix)
}

// MaskEmail turns "dana@gmail.com" into "d****@gmail.com". Anything that is not
// exactly one "@" with a non-empty local part comes back unchanged.
func MaskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" {
		return email
	}
	first := []rune(parts[0])[0]
	return string(first) + "****@" + parts[1]
}
