// file_repository.go implements FileRepository over the files and uploads
// tables. Version "" selects unversioned rows.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/model-registry/model-registry/internal/db"
	"github.com/model-registry/model-registry/internal/db/models"
)

// FileRepository handles file and upload database operations
type FileRepository struct {
	db db.DBTX
}

// NewFileRepository creates a new FileRepository
func NewFileRepository(conn db.DBTX) *FileRepository {
	return &FileRepository{db: conn}
}

// ListFiles returns the files of a model version ordered by name
func (r *FileRepository) ListFiles(ctx context.Context, repoID, version string) ([]*models.FileRecord, error) {
	query := `
		SELECT repo_id, rfilename, version, size, sha256, updated_ts
		FROM files
		WHERE repo_id = $1 AND version = $2
		ORDER BY rfilename ASC
	`

	rows, err := r.db.QueryContext(ctx, query, repoID, version)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	out := make([]*models.FileRecord, 0)
	for rows.Next() {
		f := &models.FileRecord{}
		if err := rows.Scan(&f.RepoID, &f.RFilename, &f.Version, &f.Size, &f.SHA256, &f.UpdatedTS); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetFile retrieves one file record. Returns (nil, nil) when it does not exist.
func (r *FileRepository) GetFile(ctx context.Context, repoID, rfilename, version string) (*models.FileRecord, error) {
	query := `
		SELECT repo_id, rfilename, version, size, sha256, updated_ts
		FROM files
		WHERE repo_id = $1 AND rfilename = $2 AND version = $3
	`

	f := &models.FileRecord{}
	err := r.db.QueryRowContext(ctx, query, repoID, rfilename, version).
		Scan(&f.RepoID, &f.RFilename, &f.Version, &f.Size, &f.SHA256, &f.UpdatedTS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// LatestUploadKey returns the object key of the most recent upload of a file to
// one of targets. The empty string means no upload matched.
func (r *FileRepository) LatestUploadKey(ctx context.Context, repoID, rfilename, version string, targets []string) (string, error) {
	query := `
		SELECT object_key
		FROM uploads
		WHERE repo_id = $1 AND rfilename = $2 AND version = $3
		  AND target = ANY($4) AND object_key <> ''
		ORDER BY uploaded_ts DESC, id DESC
		LIMIT 1
	`

	var key string
	err := r.db.QueryRowContext(ctx, query, repoID, rfilename, version, pq.Array(targets)).Scan(&key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up upload: %w", err)
	}
	return key, nil
}

// UploadKeys returns the latest upload object key per file of a model version,
// keyed by rfilename. Files without a matching upload are absent from the map.
func (r *FileRepository) UploadKeys(ctx context.Context, repoID, version string, targets []string) (map[string]string, error) {
	query := `
		SELECT DISTINCT ON (rfilename) rfilename, object_key
		FROM uploads
		WHERE repo_id = $1 AND version = $2
		  AND target = ANY($3) AND object_key <> ''
		ORDER BY rfilename, uploaded_ts DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, repoID, version, pq.Array(targets))
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]string)
	for rows.Next() {
		var name, key string
		if err := rows.Scan(&name, &key); err != nil {
			return nil, err
		}
		keys[name] = key
	}
	return keys, rows.Err()
}
