package catalog

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/model-registry/model-registry/internal/auth"
	"github.com/model-registry/model-registry/internal/config"
	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/db/repositories"
	"github.com/model-registry/model-registry/internal/middleware"
	"github.com/model-registry/model-registry/internal/services"
	"github.com/model-registry/model-registry/internal/storage/storagetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testNow = int64(1_700_000_000)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeModels struct {
	rows      map[string]*models.Model
	versions  map[string][]*models.ModelVersion
	gotFilter repositories.ModelFilter
	gotScope  repositories.CatalogScope
}

func (f *fakeModels) List(_ context.Context, filter repositories.ModelFilter, scope repositories.CatalogScope) ([]*models.Model, error) {
	f.gotFilter, f.gotScope = filter, scope
	out := make([]*models.Model, 0, len(f.rows))
	for _, m := range f.rows {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RepoID < out[j].RepoID })
	return out, nil
}

func (f *fakeModels) Get(_ context.Context, repoID string) (*models.Model, error) {
	return f.rows[repoID], nil
}

func (f *fakeModels) Changes(_ context.Context, since int64, limit int, scope repositories.CatalogScope) ([]models.ModelChange, error) {
	f.gotScope = scope
	out := []models.ModelChange{}
	for _, m := range f.rows {
		if m.LastUpdateTS != nil && *m.LastUpdateTS > since && len(out) < limit {
			out = append(out, models.ModelChange{RepoID: m.RepoID, LastUpdateTS: *m.LastUpdateTS})
		}
	}
	return out, nil
}

func (f *fakeModels) ListVersions(_ context.Context, repoID string) ([]*models.ModelVersion, error) {
	return append([]*models.ModelVersion(nil), f.versions[repoID]...), nil
}

// fakeGrants implements auth.GrantLookup
type fakeGrants map[string]*models.Grant

func (f fakeGrants) GetFor(_ context.Context, userID int64, repoID string) (*models.Grant, error) {
	g := f[repoID]
	if g == nil || g.PlatformUserID != userID {
		return nil, nil
	}
	return g, nil
}

// fakeFiles resolves files from a fixed table; keys are "hf/<repo>/<file>"
type fakeFiles struct {
	files map[string][]*models.FileRecord
}

func (f *fakeFiles) Resolve(_ context.Context, repoID, rfilename, version string) (*models.FileRecord, string, error) {
	for _, rec := range f.files[repoID] {
		if rec.RFilename == rfilename && rec.Version == version {
			return rec, "hf/" + repoID + "/" + rfilename, nil
		}
	}
	return nil, "", services.NotFound("file not found")
}

func (f *fakeFiles) Entries(_ context.Context, repoID, version string, presign bool, expires int) ([]services.FileEntry, error) {
	if err := services.ValidateExpires(expires); err != nil {
		return nil, err
	}
	out := []services.FileEntry{}
	for _, rec := range f.files[repoID] {
		if rec.Version == version {
			out = append(out, services.FileEntry{RFilename: rec.RFilename, ObjectKey: "hf/" + repoID + "/" + rec.RFilename})
		}
	}
	return out, nil
}

func (f *fakeFiles) Manifest(ctx context.Context, repoID string, updatedTS int64, version string, presign bool, expires int) (*services.Manifest, error) {
	entries, err := f.Entries(ctx, repoID, version, presign, expires)
	if err != nil {
		return nil, err
	}
	return &services.Manifest{Schema: services.ManifestSchema, RepoID: repoID, Version: version, UpdatedTS: updatedTS, Files: entries}, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []services.Event
}

func (f *fakeRecorder) Record(ev services.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeRecorder) last(t *testing.T) services.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.events, "no usage event recorded")
	return f.events[len(f.events)-1]
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

func int64Ptr(v int64) *int64 { return &v }

type fixture struct {
	router   *gin.Engine
	models   *fakeModels
	grants   fakeGrants
	store    *storagetest.Memory
	recorder *fakeRecorder
	users    map[string]*models.Credential
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		models: &fakeModels{
			rows: map[string]*models.Model{
				"org/public": {RepoID: "org/public", Visibility: models.VisibilityPublic, LastUpdateTS: int64Ptr(testNow - 10)},
				"org/private": {RepoID: "org/private", Visibility: models.VisibilityPrivate,
					OwnerUserID: int64Ptr(1), LastUpdateTS: int64Ptr(testNow - 5)},
				"solo": {RepoID: "solo", Visibility: models.VisibilityPublic},
			},
			versions: map[string][]*models.ModelVersion{
				"org/public": {{Version: "v1.0"}, {Version: "main"}, {Version: "v2.0"}},
			},
		},
		grants:   fakeGrants{},
		store:    storagetest.NewMemory(),
		recorder: &fakeRecorder{},
		users: map[string]*models.Credential{
			"owner":    cred(1, models.RoleDeveloper),
			"other":    cred(2, models.RoleDeveloper),
			"platform": cred(3, models.RolePlatform),
			"admin":    cred(4, models.RoleAdmin),
		},
	}

	files := &fakeFiles{files: map[string][]*models.FileRecord{
		"org/public": {
			{RepoID: "org/public", RFilename: "config.json", Size: int64Ptr(2)},
			{RepoID: "org/public", RFilename: "sub/model.bin", Size: int64Ptr(4096)},
		},
		"org/private": {{RepoID: "org/private", RFilename: "weights.bin"}},
		"solo":        {{RepoID: "solo", RFilename: "a/b.txt"}},
	}}
	f.store.Put("hf/org/public/config.json", []byte("{}"))
	f.store.Put("hf/org/private/weights.bin", []byte("w"))
	f.store.Put("hf/solo/a/b.txt", []byte("b"))

	h := NewHandlers(&config.Config{}, Deps{
		Models:   f.models,
		Policy:   auth.NewPolicy(f.grants),
		Files:    files,
		Resolver: files,
		Issuer:   services.NewURLIssuer(f.store),
		Usage:    f.recorder,
	})
	h.now = func() time.Time { return time.Unix(testNow, 0) }

	r := gin.New()
	v1 := r.Group("/v1", f.authenticate)
	v1.GET("/models", h.ListModels())
	v1.GET("/models/*path", h.ModelRoutes())
	v1.GET("/changes", h.Changes())
	v1.GET("/manifest/*path", h.Manifest())
	v1.GET("/files/*path", h.Download())
	f.router = r
	return f
}

func cred(id int64, role models.Role) *models.Credential {
	return &models.Credential{
		Key:  models.APIKey{ID: id * 10, UserID: id},
		User: models.User{ID: id, Email: "u@example.com", Role: role},
	}
}

// authenticate stands in for APIKeyAuth: the x-api-key value names a fixture user
func (f *fixture) authenticate(c *gin.Context) {
	cred, ok := f.users[c.GetHeader(middleware.APIKeyHeader)]
	if !ok {
		c.AbortWithStatusJSON(401, gin.H{"detail": "invalid or revoked api key"})
		return
	}
	c.Set(middleware.CredentialKey, cred)
	c.Next()
}

func (f *fixture) get(as, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set(middleware.APIKeyHeader, as)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
