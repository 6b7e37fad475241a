package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/middleware"
	"github.com/model-registry/model-registry/internal/services"
	"github.com/model-registry/model-registry/internal/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
	validation.RegisterWithGin()
}

// errDB is a sentinel error for DB failures in tests.
var errDB = errors.New("database error")

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeUsers struct {
	rows   map[int64]*models.User
	nextID int64
	err    error
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{rows: map[int64]*models.User{}, nextID: 100}
	for _, u := range users {
		f.rows[u.ID] = u
	}
	return f
}

func (f *fakeUsers) CreateUser(_ context.Context, email, name string, role models.Role) (*models.User, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if !role.Valid() {
		return nil, "", services.InvalidArgumentf("invalid role: %q", role)
	}
	for _, u := range f.rows {
		if u.Email == email {
			return nil, "", services.Conflict("email already registered")
		}
	}
	f.nextID++
	u := &models.User{ID: f.nextID, Email: email, Name: name, Role: role}
	f.rows[u.ID] = u
	return u, "mr_newkey", nil
}

func (f *fakeUsers) ListUsers(_ context.Context, limit, offset int) ([]*models.User, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	all := make([]*models.User, 0, len(f.rows))
	for _, u := range f.rows {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= total {
		return []*models.User{}, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (f *fakeUsers) GetUser(_ context.Context, id int64) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.rows[id]
	if !ok {
		return nil, services.NotFound("user not found")
	}
	return u, nil
}

func (f *fakeUsers) UpdateUser(ctx context.Context, id int64, name *string, role *models.Role) (*models.User, error) {
	u, err := f.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if role != nil {
		if !role.Valid() {
			return nil, services.InvalidArgumentf("invalid role: %q", *role)
		}
		u.Role = *role
	}
	if name != nil {
		u.Name = *name
	}
	return u, nil
}

func (f *fakeUsers) ReissueKey(ctx context.Context, userID int64) (string, error) {
	if _, err := f.GetUser(ctx, userID); err != nil {
		return "", err
	}
	return "mr_reissued", nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// asAdminToken marks the request as authenticated with the operator token
func asAdminToken(c *gin.Context) {
	c.Set(middleware.AuthMethodKey, "admin_token")
	c.Next()
}

// asUser authenticates the request as u through an API key
func asUser(u *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.CredentialKey, &models.Credential{User: *u})
		c.Set(middleware.UserIDKey, u.ID)
		c.Set(middleware.AuthMethodKey, "api_key")
		c.Next()
	}
}

func jsonBody(v interface{}) *bytes.Buffer {
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}

func getJSON(resp *httptest.ResponseRecorder) map[string]interface{} {
	var m map[string]interface{}
	_ = json.Unmarshal(resp.Body.Bytes(), &m)
	return m
}

func int64Ptr(v int64) *int64 { return &v }
