package models

import "time"

// APIKey is a stored credential. Only the sha256 digest of the key is kept; the
// plaintext is returned to the caller once, at issue time.
type APIKey struct {
	ID         int64
	UserID     int64
	KeyHash    string // sha256 hex of the full key
	KeyPrefix  string // first characters of the key, for display
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time // set once; a revoked key never becomes active again
}

// Active reports whether the key has not been revoked
func (k *APIKey) Active() bool {
	return k.RevokedAt == nil
}

// Credential pairs an active key with the user that owns it
type Credential struct {
	Key  APIKey
	User User
}
