// Package middleware provides Gin HTTP middleware for authentication, rate limiting,
// security headers, request logging and audit shipping.
//
// Middleware ordering is enforced in internal/api/router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → Security → RateLimit → Auth → Audit → Handler
//
// Rate limiting runs before auth so that key guessing is throttled before any
// database work. Authorization against a repository is not middleware: handlers
// call auth.Policy.Authorize once the repository is known.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/api/respond"
	"github.com/model-registry/model-registry/internal/auth"
	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/services"
	"github.com/model-registry/model-registry/internal/telemetry"
)

const (
	// APIKeyHeader carries a user API key
	APIKeyHeader = "x-api-key"
	// AdminTokenHeader carries the operator admin token
	AdminTokenHeader = "x-admin-token"

	// CredentialKey is the gin.Context key of the authenticated *models.Credential
	CredentialKey = "credential"
	// UserIDKey is the gin.Context key of the authenticated user id (int64)
	UserIDKey = "user_id"
	// APIKeyIDKey is the gin.Context key of the presented key id (int64)
	APIKeyIDKey = "api_key_id"
	// AuthMethodKey records how the caller authenticated: api_key or admin_token
	AuthMethodKey = "auth_method"
)

// Authenticator resolves a presented API key. services.CredentialStore implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*models.Credential, error)
}

// APIKeyAuth requires a valid x-api-key and stores the credential in the context
func APIKeyAuth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred, err := authn.Authenticate(c.Request.Context(), c.GetHeader(APIKeyHeader))
		if err != nil {
			telemetry.AuthFailuresTotal.WithLabelValues(failureReason(err)).Inc()
			respond.Error(c, err)
			return
		}
		setCredential(c, cred)
		c.Next()
	}
}

// AdminAuth admits callers presenting the admin token, or an API key whose owner
// has the admin role. The token is checked first when both headers are present.
func AdminAuth(verifier *auth.AdminVerifier, authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(AdminTokenHeader)
		key := c.GetHeader(APIKeyHeader)

		if token == "" && key != "" {
			cred, err := authn.Authenticate(c.Request.Context(), key)
			if err != nil {
				telemetry.AuthFailuresTotal.WithLabelValues(failureReason(err)).Inc()
				respond.Error(c, err)
				return
			}
			if !cred.User.IsAdmin() {
				telemetry.AuthFailuresTotal.WithLabelValues("not_admin").Inc()
				respond.Detail(c, http.StatusForbidden, "admin role required")
				return
			}
			setCredential(c, cred)
			c.Next()
			return
		}

		if !verifier.Configured() {
			telemetry.AuthFailuresTotal.WithLabelValues("admin_unconfigured").Inc()
			respond.Detail(c, http.StatusServiceUnavailable, "admin token not configured")
			return
		}
		if !verifier.Verify(token) {
			telemetry.AuthFailuresTotal.WithLabelValues("invalid_admin_token").Inc()
			respond.Detail(c, http.StatusUnauthorized, "invalid admin token")
			return
		}

		c.Set(AuthMethodKey, "admin_token")
		c.Next()
	}
}

func setCredential(c *gin.Context, cred *models.Credential) {
	c.Set(CredentialKey, cred)
	c.Set(UserIDKey, cred.User.ID)
	c.Set(APIKeyIDKey, cred.Key.ID)
	c.Set(AuthMethodKey, "api_key")
}

func failureReason(err error) string {
	var se *services.Error
	switch {
	case !errors.As(err, &se) || se.Kind != services.KindUnauthorized:
		return "error"
	case se.Detail == "missing x-api-key":
		return "missing_key"
	default:
		return "invalid_key"
	}
}

// CurrentCredential returns the credential set by APIKeyAuth, or nil
func CurrentCredential(c *gin.Context) *models.Credential {
	v, ok := c.Get(CredentialKey)
	if !ok {
		return nil
	}
	cred, _ := v.(*models.Credential)
	return cred
}

// CurrentUser returns the authenticated user, or nil for admin-token callers
func CurrentUser(c *gin.Context) *models.User {
	if cred := CurrentCredential(c); cred != nil {
		return &cred.User
	}
	return nil
}

// Principal returns the user the request acts as. Admin-token callers have no
// user row and act as an anonymous admin.
func Principal(c *gin.Context) *models.User {
	if u := CurrentUser(c); u != nil {
		return u
	}
	if c.GetString(AuthMethodKey) == "admin_token" {
		return &models.User{Role: models.RoleAdmin}
	}
	return nil
}
