// grant_repository.go implements GrantRepository. Grant status is never stored;
// callers derive it from the window with models.Grant.StatusAt.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/model-registry/model-registry/internal/db/models"
)

// GrantRepository handles platform grant database operations
type GrantRepository struct {
	db *sqlx.DB
}

// NewGrantRepository creates a new grant repository
func NewGrantRepository(db *sqlx.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

const grantColumns = `id, platform_user_id, repo_id, permitted_from_ts, permitted_until_ts, created_at`

// Create inserts a grant. Returns ErrDuplicate when the (user, repo) pair
// already has one.
func (r *GrantRepository) Create(ctx context.Context, grant *models.Grant) error {
	query := `
		INSERT INTO grants (platform_user_id, repo_id, permitted_from_ts, permitted_until_ts)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		grant.PlatformUserID,
		grant.RepoID,
		grant.PermittedFromTS,
		grant.PermittedUntilTS,
	).Scan(&grant.ID, &grant.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create grant: %w", err)
	}
	return nil
}

// GetByID retrieves a grant by ID
func (r *GrantRepository) GetByID(ctx context.Context, id int64) (*models.Grant, error) {
	var g models.Grant
	err := r.db.GetContext(ctx, &g, `SELECT `+grantColumns+` FROM grants WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return &g, nil
}

// GetFor retrieves the grant of a platform user on a repository, if any
func (r *GrantRepository) GetFor(ctx context.Context, platformUserID int64, repoID string) (*models.Grant, error) {
	var g models.Grant
	err := r.db.GetContext(ctx, &g,
		`SELECT `+grantColumns+` FROM grants WHERE platform_user_id = $1 AND repo_id = $2`,
		platformUserID, repoID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return &g, nil
}

// List returns grants ordered by id, optionally for one platform user
func (r *GrantRepository) List(ctx context.Context, platformUserID *int64) ([]models.Grant, error) {
	query := `SELECT ` + grantColumns + ` FROM grants`
	args := []any{}
	if platformUserID != nil {
		query += ` WHERE platform_user_id = $1`
		args = append(args, *platformUserID)
	}
	query += ` ORDER BY id ASC`

	grants := []models.Grant{}
	if err := r.db.SelectContext(ctx, &grants, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return grants, nil
}

// Delete removes a grant. Returns false when no grant had this id.
func (r *GrantRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM grants WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
