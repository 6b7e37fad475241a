// Package catalog implements the authenticated read side of the registry: model
// listing and detail, file listings, versions, the change feed, manifests and
// presigned downloads. Every repository-scoped handler goes through one
// authorization check and records a usage event.
package catalog

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/api/respond"
	"github.com/model-registry/model-registry/internal/auth"
	"github.com/model-registry/model-registry/internal/config"
	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/db/repositories"
	"github.com/model-registry/model-registry/internal/middleware"
	"github.com/model-registry/model-registry/internal/services"
)

// ModelStore reads catalog rows
type ModelStore interface {
	List(ctx context.Context, filter repositories.ModelFilter, scope repositories.CatalogScope) ([]*models.Model, error)
	Get(ctx context.Context, repoID string) (*models.Model, error)
	Changes(ctx context.Context, since int64, limit int, scope repositories.CatalogScope) ([]models.ModelChange, error)
	ListVersions(ctx context.Context, repoID string) ([]*models.ModelVersion, error)
}

// Authorizer is the access policy. auth.Policy implements it.
type Authorizer interface {
	Authorize(ctx context.Context, user *models.User, res auth.Resource, action auth.Action, at int64) (bool, error)
	CatalogScope(user *models.User, at int64) repositories.CatalogScope
}

// FileCatalog lists files and builds manifests. services.Catalog implements it.
type FileCatalog interface {
	Entries(ctx context.Context, repoID, version string, presign bool, expires int) ([]services.FileEntry, error)
	Manifest(ctx context.Context, repoID string, updatedTS int64, version string, presign bool, expires int) (*services.Manifest, error)
}

// Resolver maps one file to its object key. services.Locator implements it.
type Resolver interface {
	Resolve(ctx context.Context, repoID, rfilename, version string) (*models.FileRecord, string, error)
}

// Issuer signs object keys. services.URLIssuer implements it.
type Issuer interface {
	Issue(ctx context.Context, objectKey string, expires int) (*services.PresignedURL, error)
}

// UsageRecorder accepts access events without blocking
type UsageRecorder interface {
	Record(ev services.Event)
}

// Handlers serves the catalog routes
type Handlers struct {
	models         ModelStore
	policy         Authorizer
	files          FileCatalog
	resolver       Resolver
	issuer         Issuer
	usage          UsageRecorder
	defaultExpires int
	now            func() time.Time
}

// Deps groups the collaborators of the catalog handlers
type Deps struct {
	Models   ModelStore
	Policy   Authorizer
	Files    FileCatalog
	Resolver Resolver
	Issuer   Issuer
	Usage    UsageRecorder
}

// NewHandlers creates the catalog handlers
func NewHandlers(cfg *config.Config, deps Deps) *Handlers {
	expires := cfg.Registry.DefaultExpires
	if expires == 0 {
		expires = 3600
	}
	return &Handlers{
		models:         deps.Models,
		policy:         deps.Policy,
		files:          deps.Files,
		resolver:       deps.Resolver,
		issuer:         deps.Issuer,
		usage:          deps.Usage,
		defaultExpires: expires,
		now:            time.Now,
	}
}

// authorize loads the catalog row of repoID and checks action against it. A
// repository without a catalog row is "model not found" to anyone the policy
// rejects.
func (h *Handlers) authorize(c *gin.Context, repoID string, action auth.Action) (*models.Model, error) {
	ctx := c.Request.Context()

	model, err := h.models.Get(ctx, repoID)
	if err != nil {
		return nil, err
	}

	allowed, err := h.policy.Authorize(ctx, middleware.CurrentUser(c), auth.Resource{RepoID: repoID, Model: model}, action, h.now().Unix())
	if err != nil {
		return nil, err
	}
	if !allowed {
		if model == nil {
			return nil, services.NotFound("model not found")
		}
		return nil, services.Forbidden("access denied")
	}
	return model, nil
}

// event starts a usage event attributed to the caller
func (h *Handlers) event(c *gin.Context, eventType, repoID string) services.Event {
	ev := services.Event{
		Type:       eventType,
		Status:     models.AccessOK,
		RepoID:     repoID,
		RemoteAddr: c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	}
	if cred := middleware.CurrentCredential(c); cred != nil {
		userID, keyID := cred.User.ID, cred.Key.ID
		ev.UserID = &userID
		ev.APIKeyID = &keyID
	}
	return ev
}

// fail records ev with the outcome of err and writes the error response
func (h *Handlers) fail(c *gin.Context, ev services.Event, err error) {
	ev.Status = statusOf(err)
	h.usage.Record(ev)
	respond.Error(c, err)
}

// statusOf maps an error to the access log status vocabulary
func statusOf(err error) string {
	kind, _ := services.KindOf(err)
	switch kind {
	case services.KindForbidden, services.KindUnauthorized:
		return models.AccessDenied
	case services.KindNotFound:
		return models.AccessNotFound
	case services.KindInvalidArgument:
		return models.AccessBadParams
	default:
		return models.AccessError
	}
}
