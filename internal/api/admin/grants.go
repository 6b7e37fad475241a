// grants.go implements handlers for the time-bounded access grants of platform users.
package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/api/params"
	"github.com/model-registry/model-registry/internal/api/respond"
	"github.com/model-registry/model-registry/internal/services"
)

// Grants is the grant table. services.GrantTable implements it.
type Grants interface {
	CreateGrant(ctx context.Context, platformUserID int64, repoID string, fromTS, untilTS *int64) (*services.GrantView, error)
	ListGrants(ctx context.Context, platformUserID *int64) ([]services.GrantView, error)
	RevokeGrant(ctx context.Context, id int64) error
}

// GrantHandlers handles grant endpoints
type GrantHandlers struct {
	grants Grants
}

// NewGrantHandlers creates a new GrantHandlers instance
func NewGrantHandlers(grants Grants) *GrantHandlers {
	return &GrantHandlers{grants: grants}
}

// CreateGrantRequest opens a window [from_ts, until_ts) on one repository.
// from_ts defaults to now; a missing until_ts never expires.
type CreateGrantRequest struct {
	PlatformUserID int64  `json:"platform_user_id" binding:"required,gt=0"`
	RepoID         string `json:"repo_id" binding:"required,repoid"`
	FromTS         *int64 `json:"from_ts"`
	UntilTS        *int64 `json:"until_ts"`
}

// CreateGrantHandler creates a grant
// POST /v1/admin/grants
func (h *GrantHandlers) CreateGrantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateGrantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}

		grant, err := h.grants.CreateGrant(c.Request.Context(), req.PlatformUserID, req.RepoID, req.FromTS, req.UntilTS)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, grant)
	}
}

// ListGrantsHandler lists grants with their current status
// GET /v1/admin/grants?user_id=
func (h *GrantHandlers) ListGrantsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := params.OptionalInt64(c, "user_id")
		if err != nil {
			respond.Error(c, err)
			return
		}

		grants, err := h.grants.ListGrants(c.Request.Context(), userID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, grants)
	}
}

// RevokeGrantHandler deletes a grant
// DELETE /v1/admin/grants/:id
func (h *GrantHandlers) RevokeGrantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}

		if err := h.grants.RevokeGrant(c.Request.Context(), id); err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"revoked": id})
	}
}
