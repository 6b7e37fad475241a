package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/api/respond"
	"github.com/model-registry/model-registry/internal/auth"
	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/middleware"
	"github.com/model-registry/model-registry/internal/services"
)

// ModelAccess reads and changes model ownership. repositories.ModelRepository implements it.
type ModelAccess interface {
	Get(ctx context.Context, repoID string) (*models.Model, error)
	UpdateAccess(ctx context.Context, repoID string, ownerUserID *int64, clearOwner bool, visibility *models.Visibility) (*models.Model, error)
}

// UserLookup resolves user ids
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Authorizer is the access policy. auth.Policy implements it.
type Authorizer interface {
	Authorize(ctx context.Context, user *models.User, res auth.Resource, action auth.Action, at int64) (bool, error)
}

// ModelHandlers handles model ownership and visibility changes
type ModelHandlers struct {
	models ModelAccess
	users  UserLookup
	policy Authorizer
	now    func() time.Time
}

// NewModelHandlers creates a new ModelHandlers instance
func NewModelHandlers(store ModelAccess, users UserLookup, policy Authorizer) *ModelHandlers {
	return &ModelHandlers{models: store, users: users, policy: policy, now: time.Now}
}

// UpdateModelRequest changes a model's owner and/or visibility. clear_owner
// removes the owner and wins over owner_user_id.
type UpdateModelRequest struct {
	RepoID      string             `json:"repo_id" binding:"required,repoid"`
	OwnerUserID *int64             `json:"owner_user_id" binding:"omitempty,gt=0"`
	ClearOwner  bool               `json:"clear_owner"`
	Visibility  *models.Visibility `json:"visibility"`
}

// UpdateModelHandler changes who owns a model and who can see it
// PATCH /v1/admin/models
func (h *ModelHandlers) UpdateModelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateModelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}
		if req.Visibility != nil && !req.Visibility.Valid() {
			respond.Error(c, services.InvalidArgumentf("invalid visibility: %q", *req.Visibility))
			return
		}
		if req.OwnerUserID == nil && !req.ClearOwner && req.Visibility == nil {
			respond.Error(c, services.InvalidArgument("nothing to update"))
			return
		}

		ctx := c.Request.Context()
		model, err := h.models.Get(ctx, req.RepoID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if model == nil {
			respond.Error(c, services.NotFound("model not found"))
			return
		}

		res := auth.Resource{RepoID: req.RepoID, Model: model}
		allowed, err := h.policy.Authorize(ctx, middleware.Principal(c), res, auth.ActionAdminister, h.now().Unix())
		if err != nil {
			respond.Error(c, err)
			return
		}
		if !allowed {
			respond.Error(c, services.Forbidden("admin role required"))
			return
		}

		owner := req.OwnerUserID
		if req.ClearOwner {
			owner = nil
		} else if owner != nil {
			// GetUser is NotFound for unknown ids
			if _, err := h.users.GetUser(ctx, *owner); err != nil {
				respond.Error(c, err)
				return
			}
		}

		updated, err := h.models.UpdateAccess(ctx, req.RepoID, owner, req.ClearOwner, req.Visibility)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if updated == nil {
			respond.Error(c, services.NotFound("model not found"))
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}
