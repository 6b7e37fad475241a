package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor used by HashAdminToken
const BcryptCost = 12

// AdminVerifier checks presented x-admin-token values against the configured
// secret. A bcrypt hash takes precedence over a plaintext token.
type AdminVerifier struct {
	token string
	hash  string
}

// NewAdminVerifier creates a verifier. Both arguments may be empty, in which
// case Configured reports false and Verify rejects everything.
func NewAdminVerifier(token, hash string) *AdminVerifier {
	return &AdminVerifier{token: token, hash: hash}
}

// Configured reports whether an admin secret is set
func (v *AdminVerifier) Configured() bool {
	return v != nil && (v.token != "" || v.hash != "")
}

// Verify reports whether presented matches the admin secret
func (v *AdminVerifier) Verify(presented string) bool {
	if !v.Configured() || presented == "" {
		return false
	}
	if v.hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(v.hash), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(v.token), []byte(presented)) == 1
}

// HashAdminToken produces a bcrypt hash suitable for auth.admin_token_hash
func HashAdminToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
