package catalog

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/api/params"
	"github.com/model-registry/model-registry/internal/api/respond"
	"github.com/model-registry/model-registry/internal/auth"
	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/db/repositories"
	"github.com/model-registry/model-registry/internal/middleware"
	"github.com/model-registry/model-registry/internal/services"
	"github.com/model-registry/model-registry/internal/validation"
)

// ListModels returns one page of the catalog visible to the caller
// GET /v1/models?q=&updated_since=&limit=&offset=
func (h *Handlers) ListModels() gin.HandlerFunc {
	return func(c *gin.Context) {
		ev := h.event(c, models.EventGeneric, "")
		limit, err := params.IntInRange(c, "limit", 100, 1, 500)
		if err != nil {
			h.fail(c, ev, err)
			return
		}
		offset, err := params.NonNegative(c, "offset", 0)
		if err != nil {
			h.fail(c, ev, err)
			return
		}
		updatedSince, err := params.OptionalInt64(c, "updated_since")
		if err != nil {
			h.fail(c, ev, err)
			return
		}

		filter := repositories.ModelFilter{
			Query:        strings.TrimSpace(c.Query("q")),
			UpdatedSince: updatedSince,
			Limit:        limit,
			Offset:       offset,
		}
		scope := h.policy.CatalogScope(middleware.CurrentUser(c), h.now().Unix())

		out, err := h.models.List(c.Request.Context(), filter, scope)
		if err != nil {
			h.fail(c, ev, err)
			return
		}
		h.usage.Record(ev)
		c.JSON(http.StatusOK, out)
	}
}

// ModelRoutes dispatches GET /v1/models/*path. Repository ids may contain a
// slash, so the route is a catch-all: a trailing "/files" or "/versions"
// selects the sub-resource and the rest is the repository id.
func (h *Handlers) ModelRoutes() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.Trim(c.Param("path"), "/")

		switch {
		case hasRepoSuffix(path, "/files"):
			h.listFiles(c, strings.TrimSuffix(path, "/files"))
		case hasRepoSuffix(path, "/versions"):
			h.listVersions(c, strings.TrimSuffix(path, "/versions"))
		default:
			h.getModel(c, path)
		}
	}
}

// hasRepoSuffix reports whether path is "<repo_id><suffix>" with a valid repo id
func hasRepoSuffix(path, suffix string) bool {
	return strings.HasSuffix(path, suffix) &&
		validation.ValidateRepoID(strings.TrimSuffix(path, suffix)) == nil
}

func validRepoID(c *gin.Context, repoID string) bool {
	if err := validation.ValidateRepoID(repoID); err != nil {
		respond.Error(c, services.InvalidArgument(err.Error()))
		return false
	}
	return true
}

func (h *Handlers) getModel(c *gin.Context, repoID string) {
	if !validRepoID(c, repoID) {
		return
	}
	ev := h.event(c, models.EventGeneric, repoID)

	model, err := h.authorize(c, repoID, auth.ActionReadMetadata)
	if err != nil {
		h.fail(c, ev, err)
		return
	}
	if model == nil {
		h.fail(c, ev, services.NotFound("model not found"))
		return
	}
	h.usage.Record(ev)
	c.JSON(http.StatusOK, model)
}

// listFiles handles GET /v1/models/{repo_id}/files?version=&presign=&expires=
func (h *Handlers) listFiles(c *gin.Context, repoID string) {
	if !validRepoID(c, repoID) {
		return
	}
	ev := h.event(c, models.EventFilesList, repoID)

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
	if _, err := h.authorize(c, repoID, auth.ActionListFiles); err != nil {
		h.fail(c, ev, err)
		return
	}

	entries, err := h.files.Entries(c.Request.Context(), repoID, c.Query("version"), presign, expires)
	if err != nil {
		h.fail(c, ev, err)
		return
	}

	h.usage.Record(ev)
	c.JSON(http.StatusOK, entries)
}

// listVersions handles GET /v1/models/{repo_id}/versions
func (h *Handlers) listVersions(c *gin.Context, repoID string) {
	if !validRepoID(c, repoID) {
		return
	}
	ev := h.event(c, models.EventGeneric, repoID)

	model, err := h.authorize(c, repoID, auth.ActionReadMetadata)
	if err != nil {
		h.fail(c, ev, err)
		return
	}
	if model == nil {
		h.fail(c, ev, services.NotFound("model not found"))
		return
	}

	versions, err := h.models.ListVersions(c.Request.Context(), repoID)
	if err != nil {
		h.fail(c, ev, err)
		return
	}
	validation.SortByVersionLabel(versions, func(v *models.ModelVersion) string { return v.Version })
	h.usage.Record(ev)
	c.JSON(http.StatusOK, versions)
}

// Changes returns models updated after since, oldest first
// GET /v1/changes?since=&limit=
func (h *Handlers) Changes() gin.HandlerFunc {
	return func(c *gin.Context) {
		ev := h.event(c, models.EventGeneric, "")
		since, err := params.RequiredInt64(c, "since")
		if err != nil {
			h.fail(c, ev, err)
			return
		}
		limit, err := params.IntInRange(c, "limit", 500, 1, 2000)
		if err != nil {
			h.fail(c, ev, err)
			return
		}

		scope := h.policy.CatalogScope(middleware.CurrentUser(c), h.now().Unix())
		out, err := h.models.Changes(c.Request.Context(), since, limit, scope)
		if err != nil {
			h.fail(c, ev, err)
			return
		}
		h.usage.Record(ev)
		c.JSON(http.StatusOK, out)
	}
}
