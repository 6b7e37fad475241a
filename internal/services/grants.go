package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/db/repositories"
	"github.com/model-registry/model-registry/internal/validation"
)

// GrantView is a grant with its status computed at read time
type GrantView struct {
	models.Grant
	Status models.GrantStatus `json:"status"`
}

// GrantTable manages the time-bounded access windows of platform users
type GrantTable struct {
	grants *repositories.GrantRepository
	users  *repositories.UserRepository
	now    func() time.Time
}

// NewGrantTable creates a GrantTable
func NewGrantTable(dbx *sqlx.DB) *GrantTable {
	return &GrantTable{
		grants: repositories.NewGrantRepository(dbx),
		users:  repositories.NewUserRepository(dbx),
		now:    time.Now,
	}
}

// Lookup exposes the repository for policy checks
func (t *GrantTable) Lookup() *repositories.GrantRepository {
	return t.grants
}

// CreateGrant gives platformUserID read access to repoID within [from, until).
// A nil fromTS starts the window now; a nil untilTS never expires. An existing
// grant for the same pair is a Conflict: callers revoke and recreate instead of
// overwriting.
func (t *GrantTable) CreateGrant(ctx context.Context, platformUserID int64, repoID string, fromTS, untilTS *int64) (*GrantView, error) {
	if err := validation.ValidateRepoID(repoID); err != nil {
		return nil, InvalidArgument(err.Error())
	}

	from := t.now().Unix()
	if fromTS != nil {
		from = *fromTS
	}
	if untilTS != nil && *untilTS <= from {
		return nil, InvalidArgument("permitted_until_ts must be greater than permitted_from_ts")
	}

	user, err := t.users.GetByID(ctx, platformUserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NotFound("user not found")
	}
	if user.Role != models.RolePlatform {
		return nil, InvalidArgumentf("grants can only be issued to platform users (user %d has role %q)", user.ID, user.Role)
	}

	grant := &models.Grant{
		PlatformUserID:   platformUserID,
		RepoID:           repoID,
		PermittedFromTS:  from,
		PermittedUntilTS: untilTS,
	}
	if err := t.grants.Create(ctx, grant); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, Conflict("grant already exists for this user and repository")
		}
		return nil, err
	}

	slog.Info("grant created", "grant_id", grant.ID, "platform_user_id", platformUserID, "repo_id", repoID,
		"from_ts", from, "until_ts", untilTS)
	return &GrantView{Grant: *grant, Status: grant.StatusAt(t.now().Unix())}, nil
}

// ListGrants returns all grants, or those of one platform user
func (t *GrantTable) ListGrants(ctx context.Context, platformUserID *int64) ([]GrantView, error) {
	grants, err := t.grants.List(ctx, platformUserID)
	if err != nil {
		return nil, err
	}

	now := t.now().Unix()
	out := make([]GrantView, 0, len(grants))
	for _, g := range grants {
		out = append(out, GrantView{Grant: g, Status: g.StatusAt(now)})
	}
	return out, nil
}

// RevokeGrant deletes a grant
func (t *GrantTable) RevokeGrant(ctx context.Context, id int64) error {
	deleted, err := t.grants.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return NotFound("grant not found")
	}
	slog.Info("grant revoked", "grant_id", id)
	return nil
}
