package auth

import (
	"context"

	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/db/repositories"
)

// Action is an operation a caller attempts on a model repository
type Action string

const (
	ActionReadMetadata Action = "metadata:read"
	ActionListFiles    Action = "files:list"
	ActionDownload     Action = "files:download"
	ActionManifest     Action = "manifest:read"
	// ActionAdminister covers owner and visibility changes; admins only.
	ActionAdminister Action = "model:admin"
)

// Resource identifies the repository being accessed. Model may be nil when the
// catalog has no row for RepoID; such a repository is treated as private and unowned.
type Resource struct {
	RepoID string
	Model  *models.Model
}

// GrantLookup finds the grant of a platform user on a repository
type GrantLookup interface {
	GetFor(ctx context.Context, platformUserID int64, repoID string) (*models.Grant, error)
}

// Policy decides whether a user may perform an action on a repository
type Policy struct {
	grants GrantLookup
}

// NewPolicy creates a new Policy
func NewPolicy(grants GrantLookup) *Policy {
	return &Policy{grants: grants}
}

// Authorize reports whether user may perform action on res at Unix time at.
//
//   - admin: always.
//   - developer: the user owns the model or its visibility is public.
//   - platform: a grant for (user, repo) is active at `at`.
//
// Only admins may perform ActionAdminister. Unknown roles are denied.
func (p *Policy) Authorize(ctx context.Context, user *models.User, res Resource, action Action, at int64) (bool, error) {
	if user == nil {
		return false, nil
	}
	if user.Role == models.RoleAdmin {
		return true, nil
	}
	if action == ActionAdminister {
		return false, nil
	}

	switch user.Role {
	case models.RoleDeveloper:
		if res.Model == nil {
			return false, nil
		}
		return res.Model.OwnedBy(user.ID) || res.Model.Visibility == models.VisibilityPublic, nil
	case models.RolePlatform:
		grant, err := p.grants.GetFor(ctx, user.ID, res.RepoID)
		if err != nil {
			return false, err
		}
		return grant != nil && grant.ActiveAt(at), nil
	default:
		return false, nil
	}
}

// CatalogScope returns the listing filter matching Authorize for user at time at
func (p *Policy) CatalogScope(user *models.User, at int64) repositories.CatalogScope {
	if user == nil {
		return repositories.CatalogScope{}
	}
	return repositories.CatalogScope{Role: user.Role, UserID: user.ID, At: at}
}
