package catalog

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/api/params"
	"github.com/model-registry/model-registry/internal/api/respond"
	"github.com/model-registry/model-registry/internal/auth"
	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/services"
	"github.com/model-registry/model-registry/internal/telemetry"
	"github.com/model-registry/model-registry/internal/validation"
)

// DownloadResponse describes one presigned file download
type DownloadResponse struct {
	RepoID    string  `json:"repo_id"`
	RFilename string  `json:"rfilename"`
	Version   string  `json:"version,omitempty"`
	Size      *int64  `json:"size"`
	SHA256    *string `json:"sha256"`
	ObjectKey string  `json:"object_key"`
	URL       string  `json:"url"`
	ExpiresIn int     `json:"expires_in"`
}

type fileRef struct {
	repoID    string
	rfilename string
}

// downloadCandidates splits "<repo_id>/<rfilename>/download" into the possible
// (repo id, file) pairs, two-segment repo id first
func downloadCandidates(path string) []fileRef {
	path = strings.Trim(path, "/")
	if !strings.HasSuffix(path, "/download") {
		return nil
	}
	parts := strings.SplitN(strings.TrimSuffix(path, "/download"), "/", 3)

	var out []fileRef
	if len(parts) == 3 {
		out = append(out, fileRef{repoID: parts[0] + "/" + parts[1], rfilename: parts[2]})
	}
	if len(parts) >= 2 {
		out = append(out, fileRef{repoID: parts[0], rfilename: strings.Join(parts[1:], "/")})
	}

	valid := out[:0]
	for _, ref := range out {
		if validation.ValidateRepoID(ref.repoID) == nil && validation.ValidateRFilename(ref.rfilename) == nil {
			valid = append(valid, ref)
		}
	}
	return valid
}

// Download issues a presigned URL for one file
// GET /v1/files/{repo_id}/{rfilename}/download?version=&expires=
func (h *Handlers) Download() gin.HandlerFunc {
	return func(c *gin.Context) {
		refs := downloadCandidates(c.Param("path"))
		if len(refs) == 0 {
			respond.Error(c, services.NotFound("file not found"))
			return
		}
		ctx := c.Request.Context()
		ev := h.event(c, models.EventDownload, refs[0].repoID)
		ev.RFilename = refs[0].rfilename

		expires, err := params.Expires(c, h.defaultExpires)
		if err == nil {
			err = services.ValidateExpires(expires)
		}
		if err != nil {
			h.failDownload(c, ev, err)
			return
		}

		version := c.Query("version")
		var (
			rec   *models.FileRecord
			key   string
			found fileRef
		)
		for _, ref := range refs {
			// access is settled before the file lookup so a denied caller
			// cannot tell present files from absent ones
			if _, err := h.authorize(c, ref.repoID, auth.ActionDownload); err != nil {
				if services.IsKind(err, services.KindNotFound) {
					continue
				}
				ev.RepoID, ev.RFilename = ref.repoID, ref.rfilename
				h.failDownload(c, ev, err)
				return
			}
			rec, key, err = h.resolver.Resolve(ctx, ref.repoID, ref.rfilename, version)
			if err == nil {
				found = ref
				break
			}
			if !services.IsKind(err, services.KindNotFound) {
				h.failDownload(c, ev, err)
				return
			}
		}
		if rec == nil {
			h.failDownload(c, ev, services.NotFound("file not found"))
			return
		}
		ev.RepoID, ev.RFilename, ev.ObjectKey, ev.Size = found.repoID, found.rfilename, key, rec.Size

		u, err := h.issuer.Issue(ctx, key, expires)
		if err != nil {
			h.failDownload(c, ev, err)
			return
		}

		telemetry.DownloadsTotal.WithLabelValues(models.AccessOK).Inc()
		h.usage.Record(ev)
		c.JSON(http.StatusOK, DownloadResponse{
			RepoID:    found.repoID,
			RFilename: rec.RFilename,
			Version:   rec.Version,
			Size:      rec.Size,
			SHA256:    rec.SHA256,
			ObjectKey: u.ObjectKey,
			URL:       u.URL,
			ExpiresIn: u.ExpiresIn,
		})
	}
}

func (h *Handlers) failDownload(c *gin.Context, ev services.Event, err error) {
	telemetry.DownloadsTotal.WithLabelValues(statusOf(err)).Inc()
	h.fail(c, ev, err)
}
