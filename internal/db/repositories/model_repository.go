// model_repository.go implements ModelRepository: catalog listing, detail, the
// change feed, versions and owner/visibility updates. Every catalog read takes a
// CatalogScope so role-based visibility is applied inside the query.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/model-registry/model-registry/internal/db"
	"github.com/model-registry/model-registry/internal/db/models"
)

// ModelRepository handles catalog database operations
type ModelRepository struct {
	db db.DBTX
}

// NewModelRepository creates a new ModelRepository
func NewModelRepository(conn db.DBTX) *ModelRepository {
	return &ModelRepository{db: conn}
}

// CatalogScope describes which catalog rows a caller may see.
// Admins see everything; developers see public models and their own; platform
// users see repositories covered by a grant that is active at At.
type CatalogScope struct {
	Role   models.Role
	UserID int64
	At     int64
}

// ModelFilter contains the listing filters of GET /v1/models
type ModelFilter struct {
	Query        string
	UpdatedSince *int64
	Limit        int
	Offset       int
}

const modelColumns = `m.repo_id, m.canonical_url, m.model_name, m.author, m.pipeline_tag, m.license,
	m.parameters, m.parameters_readable, m.downloads, m.likes, m.hub_created_at, m.last_modified,
	m.languages, m.tags, m.file_count, m.has_safetensors, m.has_bin,
	m.owner_user_id, m.visibility, m.last_update_ts`

func scanModel(row interface{ Scan(...any) error }) (*models.Model, error) {
	m := &models.Model{}
	err := row.Scan(
		&m.RepoID,
		&m.CanonicalURL,
		&m.ModelName,
		&m.Author,
		&m.PipelineTag,
		&m.License,
		&m.Parameters,
		&m.ParametersReadable,
		&m.Downloads,
		&m.Likes,
		&m.CreatedAt,
		&m.LastModified,
		pq.Array(&m.Languages),
		pq.Array(&m.Tags),
		&m.FileCount,
		&m.HasSafetensors,
		&m.HasBin,
		&m.OwnerUserID,
		&m.Visibility,
		&m.LastUpdateTS,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// scopeClause renders the visibility predicate for scope. Placeholders start
// at $next; the returned args must be appended in order.
func scopeClause(scope CatalogScope, next int) (string, []any) {
	switch scope.Role {
	case models.RoleAdmin:
		return "", nil
	case models.RoleDeveloper:
		return fmt.Sprintf(" AND (m.visibility = 'public' OR m.owner_user_id = $%d)", next),
			[]any{scope.UserID}
	case models.RolePlatform:
		return fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM grants g
			WHERE g.repo_id = m.repo_id
			  AND g.platform_user_id = $%d
			  AND g.permitted_from_ts <= $%d
			  AND (g.permitted_until_ts IS NULL OR $%d < g.permitted_until_ts))`, next, next+1, next+1),
			[]any{scope.UserID, scope.At}
	default:
		return " AND FALSE", nil
	}
}

// List returns one page of the catalog visible to scope, most recently
// updated first. Models never updated sort last.
func (r *ModelRepository) List(ctx context.Context, filter ModelFilter, scope CatalogScope) ([]*models.Model, error) {
	query := `SELECT ` + modelColumns + ` FROM models m WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Query != "" {
		query += fmt.Sprintf(" AND (m.repo_id ILIKE $%d OR m.model_name ILIKE $%d OR m.author ILIKE $%d)", argIdx, argIdx, argIdx)
		args = append(args, "%"+escapeLike(filter.Query)+"%")
		argIdx++
	}

	if filter.UpdatedSince != nil {
		query += fmt.Sprintf(" AND m.last_update_ts IS NOT NULL AND m.last_update_ts > $%d", argIdx)
		args = append(args, *filter.UpdatedSince)
		argIdx++
	}

	clause, scopeArgs := scopeClause(scope, argIdx)
	query += clause
	args = append(args, scopeArgs...)
	argIdx += len(scopeArgs)

	query += fmt.Sprintf(" ORDER BY m.last_update_ts DESC NULLS LAST, m.repo_id ASC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Model, 0)
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Get retrieves a model by repo id without applying any visibility scope.
// Authorization of the returned row is the caller's job.
func (r *ModelRepository) Get(ctx context.Context, repoID string) (*models.Model, error) {
	query := `SELECT ` + modelColumns + ` FROM models m WHERE m.repo_id = $1`

	m, err := scanModel(r.db.QueryRowContext(ctx, query, repoID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Exists reports whether a catalog row exists for repoID
func (r *ModelRepository) Exists(ctx context.Context, repoID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM models WHERE repo_id = $1)`, repoID).Scan(&exists)
	return exists, err
}

// Changes returns models updated strictly after since, oldest first
func (r *ModelRepository) Changes(ctx context.Context, since int64, limit int, scope CatalogScope) ([]models.ModelChange, error) {
	query := `SELECT m.repo_id, m.last_update_ts FROM models m
		WHERE m.last_update_ts IS NOT NULL AND m.last_update_ts > $1`
	args := []any{since}

	clause, scopeArgs := scopeClause(scope, 2)
	query += clause
	args = append(args, scopeArgs...)

	query += fmt.Sprintf(" ORDER BY m.last_update_ts ASC, m.repo_id ASC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer rows.Close()

	out := make([]models.ModelChange, 0)
	for rows.Next() {
		var ch models.ModelChange
		if err := rows.Scan(&ch.RepoID, &ch.LastUpdateTS); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ListForExport returns every model with its update timestamp (0 when never
// updated), ordered by repo id
func (r *ModelRepository) ListForExport(ctx context.Context) ([]models.ModelChange, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT repo_id, COALESCE(last_update_ts, 0) FROM models ORDER BY repo_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.ModelChange, 0)
	for rows.Next() {
		var ch models.ModelChange
		if err := rows.Scan(&ch.RepoID, &ch.LastUpdateTS); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// UpdateAccess changes a model's owner and/or visibility. A nil argument keeps
// the stored value; clearOwner removes the owner. Returns (nil, nil) when the
// model does not exist.
func (r *ModelRepository) UpdateAccess(ctx context.Context, repoID string, ownerUserID *int64, clearOwner bool, visibility *models.Visibility) (*models.Model, error) {
	query := `
		UPDATE models m
		SET owner_user_id = CASE WHEN $3 THEN NULL ELSE COALESCE($2, m.owner_user_id) END,
		    visibility = COALESCE($4, m.visibility)
		WHERE m.repo_id = $1
		RETURNING ` + modelColumns

	var visArg *string
	if visibility != nil {
		s := string(*visibility)
		visArg = &s
	}

	m, err := scanModel(r.db.QueryRowContext(ctx, query, repoID, ownerUserID, clearOwner, visArg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update model access: %w", err)
	}
	return m, nil
}

// ListVersions returns the named versions of a model in insertion order
func (r *ModelRepository) ListVersions(ctx context.Context, repoID string) ([]*models.ModelVersion, error) {
	query := `
		SELECT id, repo_id, version, notes, created_at
		FROM model_versions
		WHERE repo_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.ModelVersion, 0)
	for rows.Next() {
		v := &models.ModelVersion{}
		if err := rows.Scan(&v.ID, &v.RepoID, &v.Version, &v.Notes, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes LIKE metacharacters so q matches literally
func escapeLike(q string) string {
	return likeEscaper.Replace(q)
}
