package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/model-registry/model-registry/internal/db/models"
)

type fakeGrants struct {
	grants map[string]*models.Grant
	err    error
}

func (f *fakeGrants) GetFor(_ context.Context, platformUserID int64, repoID string) (*models.Grant, error) {
	if f.err != nil {
		return nil, f.err
	}
	g := f.grants[repoID]
	if g == nil || g.PlatformUserID != platformUserID {
		return nil, nil
	}
	return g, nil
}

func int64Ptr(v int64) *int64 { return &v }

func TestAuthorize_Admin(t *testing.T) {
	p := NewPolicy(&fakeGrants{})
	admin := &models.User{ID: 1, Role: models.RoleAdmin}

	ok, err := p.Authorize(context.Background(), admin, Resource{RepoID: "org/private"}, ActionDownload, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = p.Authorize(context.Background(), admin, Resource{RepoID: "org/x"}, ActionAdminister, 0)
	assert.True(t, ok)
}

func TestAuthorize_Developer(t *testing.T) {
	p := NewPolicy(&fakeGrants{})
	dev := &models.User{ID: 7, Role: models.RoleDeveloper}

	public := &models.Model{RepoID: "org/public", Visibility: models.VisibilityPublic}
	own := &models.Model{RepoID: "org/own", Visibility: models.VisibilityPrivate, OwnerUserID: int64Ptr(7)}
	other := &models.Model{RepoID: "org/other", Visibility: models.VisibilityPrivate, OwnerUserID: int64Ptr(8)}

	tests := []struct {
		name  string
		model *models.Model
		want  bool
	}{
		{"public model", public, true},
		{"own private model", own, true},
		{"someone else's private model", other, false},
		{"no catalog row", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := p.Authorize(context.Background(), dev, Resource{RepoID: "r", Model: tt.model}, ActionManifest, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	ok, _ := p.Authorize(context.Background(), dev, Resource{RepoID: "org/own", Model: own}, ActionAdminister, 0)
	assert.False(t, ok, "developers never administer")
}

func TestAuthorize_PlatformBoundedGrant(t *testing.T) {
	const T = int64(1_700_000_000)
	p := NewPolicy(&fakeGrants{grants: map[string]*models.Grant{
		"org/model": {PlatformUserID: 5, RepoID: "org/model", PermittedFromTS: T, PermittedUntilTS: int64Ptr(T + 100)},
	}})
	platform := &models.User{ID: 5, Role: models.RolePlatform}
	res := Resource{RepoID: "org/model"}

	for at, want := range map[int64]bool{T - 1: false, T: true, T + 99: true, T + 100: false} {
		ok, err := p.Authorize(context.Background(), platform, res, ActionDownload, at)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "at %d", at)
	}
}

func TestAuthorize_PlatformUnboundedGrant(t *testing.T) {
	p := NewPolicy(&fakeGrants{grants: map[string]*models.Grant{
		"org/model": {PlatformUserID: 5, RepoID: "org/model", PermittedFromTS: 1000},
	}})
	platform := &models.User{ID: 5, Role: models.RolePlatform}

	ok, err := p.Authorize(context.Background(), platform, Resource{RepoID: "org/model"}, ActionManifest, 1_000_000)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthorize_PlatformIgnoresVisibility(t *testing.T) {
	p := NewPolicy(&fakeGrants{})
	platform := &models.User{ID: 5, Role: models.RolePlatform}
	public := &models.Model{RepoID: "org/public", Visibility: models.VisibilityPublic}

	ok, err := p.Authorize(context.Background(), platform, Resource{RepoID: "org/public", Model: public}, ActionDownload, 1)
	require.NoError(t, err)
	assert.False(t, ok, "platform access requires a grant")
}

func TestAuthorize_GrantLookupError(t *testing.T) {
	p := NewPolicy(&fakeGrants{err: errors.New("db down")})
	platform := &models.User{ID: 5, Role: models.RolePlatform}

	_, err := p.Authorize(context.Background(), platform, Resource{RepoID: "org/model"}, ActionDownload, 1)
	assert.Error(t, err)
}

func TestAuthorize_NilAndUnknownRole(t *testing.T) {
	p := NewPolicy(&fakeGrants{})
	ok, _ := p.Authorize(context.Background(), nil, Resource{}, ActionReadMetadata, 0)
	assert.False(t, ok)

	ok, _ = p.Authorize(context.Background(), &models.User{Role: "guest"}, Resource{Model: &models.Model{Visibility: models.VisibilityPublic}}, ActionReadMetadata, 0)
	assert.False(t, ok)
}

func TestCatalogScope(t *testing.T) {
	p := NewPolicy(&fakeGrants{})
	scope := p.CatalogScope(&models.User{ID: 3, Role: models.RolePlatform}, 42)
	assert.Equal(t, models.RolePlatform, scope.Role)
	assert.Equal(t, int64(3), scope.UserID)
	assert.Equal(t, int64(42), scope.At)

	assert.Equal(t, models.Role(""), p.CatalogScope(nil, 1).Role)
}
