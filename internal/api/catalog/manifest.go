package catalog

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/api/params"
	"github.com/model-registry/model-registry/internal/auth"
	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/services"
)

// Manifest returns the manifest of one model version
// GET /v1/manifest/{repo_id}?version=&presign=&expires=
func (h *Handlers) Manifest() gin.HandlerFunc {
	return func(c *gin.Context) {
		repoID := strings.Trim(c.Param("path"), "/")
		if !validRepoID(c, repoID) {
			return
		}
		ev := h.event(c, models.EventManifest, repoID)

		presign, err := params.Bool(c, "presign")
		if err != nil {
			h.fail(c, ev, err)
			return
		}
		expires, err := params.Expires(c, h.defaultExpires)
		if err == nil {
			err = services.ValidateExpires(expires)
		}
		if err != nil {
			h.fail(c, ev, err)
			return
		}

		model, err := h.authorize(c, repoID, auth.ActionManifest)
		if err != nil {
			h.fail(c, ev, err)
			return
		}
		if model == nil {
			h.fail(c, ev, services.NotFound("model not found"))
			return
		}

		var updated int64
		if model.LastUpdateTS != nil {
			updated = *model.LastUpdateTS
		}
		m, err := h.files.Manifest(c.Request.Context(), repoID, updated, c.Query("version"), presign, expires)
		if err != nil {
			h.fail(c, ev, err)
			return
		}

		h.usage.Record(ev)
		c.JSON(http.StatusOK, m)
	}
}
