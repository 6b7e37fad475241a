package services

import (
	"context"

	"github.com/model-registry/model-registry/internal/db/models"
)

// ManifestSchema identifies the manifest document format
const ManifestSchema = "hf-model-manifest/v1"

// FileEntry is a catalog file together with its resolved object key and, when
// requested, a presigned URL. PresignedURL stays nil when signing fails so one
// unreadable object does not fail a whole listing.
type FileEntry struct {
	RFilename    string  `json:"rfilename"`
	Version      string  `json:"version,omitempty"`
	Size         *int64  `json:"size"`
	SHA256       *string `json:"sha256"`
	UpdatedTS    *int64  `json:"updated_ts"`
	ObjectKey    string  `json:"object_key"`
	PresignedURL *string `json:"presigned_url,omitempty"`
}

// Manifest describes every file of one model version
type Manifest struct {
	Schema    string      `json:"schema"`
	RepoID    string      `json:"repo_id"`
	Version   string      `json:"version,omitempty"`
	UpdatedTS int64       `json:"updated_ts"`
	Files     []FileEntry `json:"files"`
}

// Catalog joins the Locator and the URLIssuer for file listings and manifests
type Catalog struct {
	locator *Locator
	issuer  *URLIssuer
}

// NewCatalog creates a Catalog. issuer may be nil when URLs are never requested.
func NewCatalog(locator *Locator, issuer *URLIssuer) *Catalog {
	return &Catalog{locator: locator, issuer: issuer}
}

// Entries lists the files of a model version with their object keys. expires
// is validated up front even without presign; with presign set every entry gets
// a URL when the backend can sign it.
func (c *Catalog) Entries(ctx context.Context, repoID, version string, presign bool, expires int) ([]FileEntry, error) {
	if err := ValidateExpires(expires); err != nil {
		return nil, err
	}
	if presign {
		if c.issuer == nil {
			return nil, ServiceUnavailable("presigning is not configured")
		}
	}

	files, err := c.locator.Files(ctx, repoID, version)
	if err != nil {
		return nil, err
	}
	keys, err := c.locator.ResolveAll(ctx, repoID, version, files)
	if err != nil {
		return nil, err
	}

	out := make([]FileEntry, 0, len(files))
	for _, f := range files {
		entry := entryFor(f, keys[f.RFilename])
		if presign {
			if u, err := c.issuer.Issue(ctx, entry.ObjectKey, expires); err == nil {
				entry.PresignedURL = &u.URL
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// Manifest builds the manifest document of one model version
func (c *Catalog) Manifest(ctx context.Context, repoID string, updatedTS int64, version string, presign bool, expires int) (*Manifest, error) {
	files, err := c.Entries(ctx, repoID, version, presign, expires)
	if err != nil {
		return nil, err
	}
	return &Manifest{
		Schema:    ManifestSchema,
		RepoID:    repoID,
		Version:   version,
		UpdatedTS: updatedTS,
		Files:     files,
	}, nil
}

func entryFor(f *models.FileRecord, key string) FileEntry {
	return FileEntry{
		RFilename: f.RFilename,
		Version:   f.Version,
		Size:      f.Size,
		SHA256:    f.SHA256,
		UpdatedTS: f.UpdatedTS,
		ObjectKey: key,
	}
}
