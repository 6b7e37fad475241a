// Package users implements the self-service account endpoints: registration,
// key rotation, the caller's profile and the caller's usage report.
package users

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/api/params"
	"github.com/model-registry/model-registry/internal/api/respond"
	"github.com/model-registry/model-registry/internal/config"
	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/middleware"
	"github.com/model-registry/model-registry/internal/services"
)

// Credentials is the part of the credential store these handlers need
type Credentials interface {
	Register(ctx context.Context, email, name string) (*models.User, string, error)
	RotateKey(ctx context.Context, currentKey string) (int64, string, error)
}

// UsageReporter produces a single user's usage report
type UsageReporter interface {
	UsageForUser(ctx context.Context, userID int64, since, until *int64, topModelsLimit int) (*services.UsageReport, error)
}

// Handlers serves /v1/users
type Handlers struct {
	selfRegistration bool
	creds            Credentials
	usage            UsageReporter
}

// NewHandlers creates the user handlers
func NewHandlers(cfg *config.Config, creds Credentials, usage UsageReporter) *Handlers {
	return &Handlers{
		selfRegistration: cfg.Auth.SelfRegistration,
		creds:            creds,
		usage:            usage,
	}
}

type registerRequest struct {
	Email string `json:"email" binding:"required,max=320"`
	Name  string `json:"name" binding:"required,max=200"`
}

// KeyResponse carries a newly issued plaintext key. It is shown once.
type KeyResponse struct {
	UserID int64  `json:"user_id"`
	APIKey string `json:"api_key"`
}

// Register creates a developer account and returns its first key
// POST /v1/users/register
func (h *Handlers) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.selfRegistration {
			respond.Detail(c, http.StatusForbidden, "self-registration is disabled")
			return
		}

		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}

		user, key, err := h.creds.Register(c.Request.Context(), req.Email, req.Name)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusCreated, KeyResponse{UserID: user.ID, APIKey: key})
	}
}

// RotateKey revokes the presented key and returns its replacement
// POST /v1/users/rotate-key
func (h *Handlers) RotateKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, key, err := h.creds.RotateKey(c.Request.Context(), c.GetHeader(middleware.APIKeyHeader))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, KeyResponse{UserID: userID, APIKey: key})
	}
}

// Me returns the authenticated user
// GET /v1/users/me
func (h *Handlers) Me() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			respond.Error(c, services.Unauthorized("missing x-api-key"))
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// MyUsage reports the caller's own activity
// GET /v1/users/me/usage?since=&until=&top_models_limit=
func (h *Handlers) MyUsage() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			respond.Error(c, services.Unauthorized("missing x-api-key"))
			return
		}

		since, err := params.OptionalInt64(c, "since")
		if err != nil {
			respond.Error(c, err)
			return
		}
		until, err := params.OptionalInt64(c, "until")
		if err != nil {
			respond.Error(c, err)
			return
		}
		limit, err := params.IntInRange(c, "top_models_limit", 20, 1, 200)
		if err != nil {
			respond.Error(c, err)
			return
		}

		report, err := h.usage.UsageForUser(c.Request.Context(), user.ID, since, until, limit)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
