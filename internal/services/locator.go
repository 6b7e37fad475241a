package services

import (
	"context"
	"strings"

	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/db/repositories"
)

// Locator maps a catalog file to the object key that holds its bytes. Resolution
// reads table state only, so repeated calls return the same key until an upload
// or file record changes.
type Locator struct {
	files           *repositories.FileRepository
	namespace       string
	overrideTargets []string
}

// NewLocator creates a Locator. Uploads recorded for any of overrideTargets take
// precedence over the key derived from namespace.
func NewLocator(files *repositories.FileRepository, namespace string, overrideTargets []string) *Locator {
	return &Locator{
		files:           files,
		namespace:       strings.Trim(namespace, "/"),
		overrideTargets: overrideTargets,
	}
}

// DerivedKey returns "<namespace>/<repo_id>/<rfilename>"
func (l *Locator) DerivedKey(repoID, rfilename string) string {
	return l.namespace + "/" + strings.Trim(repoID, "/") + "/" + rfilename
}

// Resolve returns the object key of one file. Fails with NotFound("file not
// found") when the catalog has no such file.
func (l *Locator) Resolve(ctx context.Context, repoID, rfilename, version string) (*models.FileRecord, string, error) {
	rec, err := l.files.GetFile(ctx, repoID, rfilename, version)
	if err != nil {
		return nil, "", err
	}
	if rec == nil {
		return nil, "", NotFound("file not found")
	}

	key, err := l.files.LatestUploadKey(ctx, repoID, rfilename, version, l.overrideTargets)
	if err != nil {
		return nil, "", err
	}
	if key == "" {
		key = l.DerivedKey(repoID, rfilename)
	}
	return rec, key, nil
}

// ResolveAll returns the object key of every listed file of a model version,
// using one query for the upload overrides.
func (l *Locator) ResolveAll(ctx context.Context, repoID, version string, files []*models.FileRecord) (map[string]string, error) {
	overrides, err := l.files.UploadKeys(ctx, repoID, version, l.overrideTargets)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]string, len(files))
	for _, f := range files {
		if k, ok := overrides[f.RFilename]; ok && k != "" {
			keys[f.RFilename] = k
			continue
		}
		keys[f.RFilename] = l.DerivedKey(repoID, f.RFilename)
	}
	return keys, nil
}

// Files lists the file records of a model version
func (l *Locator) Files(ctx context.Context, repoID, version string) ([]*models.FileRecord, error) {
	return l.files.ListFiles(ctx, repoID, version)
}
