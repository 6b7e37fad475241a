// Package objects serves objects of backends that sign their own URLs (the local
// filesystem backend). The presigned URL issued for such a backend points here.
package objects

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/api/respond"
	"github.com/model-registry/model-registry/internal/storage"
)

// SignedStore is a backend that can both read objects and check its own signatures
type SignedStore interface {
	storage.Storage
	storage.SignedURLVerifier
}

// ServeHandler streams the object named by the path once its signature checks out
// GET /v1/objects/*key?expires=&signature=
func ServeHandler(store SignedStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		if key == "" {
			respond.Detail(c, http.StatusBadRequest, "object key is required")
			return
		}

		expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
		if err != nil {
			respond.Detail(c, http.StatusForbidden, "invalid signature")
			return
		}
		if err := store.VerifySignedURL(key, expires, c.Query("signature"), time.Now()); err != nil {
			respond.Detail(c, http.StatusForbidden, err.Error())
			return
		}

		reader, err := store.Download(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				respond.Detail(c, http.StatusNotFound, "object not found")
				return
			}
			respond.Error(c, err)
			return
		}
		defer reader.Close()

		c.Header("Content-Disposition", storage.Disposition(key))
		c.DataFromReader(http.StatusOK, -1, storage.ContentType(key), reader, nil)
	}
}
