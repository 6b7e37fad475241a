// Package auth provides the credential primitives and the access policy of the registry.
// API keys are random secrets whose sha256 digest is the only thing persisted; the admin
// token is an operator-configured shared secret. Policy.Authorize is the single place where
// role-based access to a model repository is decided.
// See internal/middleware/auth.go for the request-time authentication that uses these primitives.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// APIKeyLength is the length of the random part of the API key in bytes
	APIKeyLength = 24

	// DisplayPrefixLength is the number of characters kept for display
	DisplayPrefixLength = 8

	// DefaultKeyPrefix is prepended to every generated key
	DefaultKeyPrefix = "sk-"
)

// GenerateAPIKey creates a new random API key with the given prefix.
// Returns: full key (to show once), sha256 hex digest (to store), display prefix
func GenerateAPIKey(prefix string) (key string, hash string, displayPrefix string, err error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullKey := prefix + hex.EncodeToString(randomBytes)
	return fullKey, HashAPIKey(fullKey), DisplayPrefix(fullKey), nil
}

// HashAPIKey returns the hex sha256 digest used to look up a presented key
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the first DisplayPrefixLength characters of key
func DisplayPrefix(key string) string {
	if len(key) > DisplayPrefixLength {
		return key[:DisplayPrefixLength]
	}
	return key
}

// NormalizeAPIKey trims surrounding whitespace from a header value
func NormalizeAPIKey(raw string) string {
	return strings.TrimSpace(raw)
}
