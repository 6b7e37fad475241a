package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeAuthenticator resolves keys from a fixed map
type fakeAuthenticator struct {
	creds map[string]*models.Credential
	err   error
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, key string) (*models.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	if key == "" {
		return nil, services.Unauthorized("missing x-api-key")
	}
	cred, ok := f.creds[key]
	if !ok {
		return nil, services.Unauthorized("invalid or revoked api key")
	}
	return cred, nil
}

func credential(userID int64, role models.Role) *models.Credential {
	now := time.Now()
	return &models.Credential{
		Key:  models.APIKey{ID: userID * 10, UserID: userID, CreatedAt: now},
		User: models.User{ID: userID, Email: "u@example.com", Name: "U", Role: role, CreatedAt: now, UpdatedAt: now},
	}
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func okHandler(c *gin.Context) { c.Status(http.StatusOK) }
