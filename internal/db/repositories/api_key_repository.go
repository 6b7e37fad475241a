// api_key_repository.go implements APIKeyRepository. Keys are looked up by the
// sha256 digest of the presented secret; the plaintext never reaches the database.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/model-registry/model-registry/internal/db"
	"github.com/model-registry/model-registry/internal/db/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db db.DBTX
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(conn db.DBTX) *APIKeyRepository {
	return &APIKeyRepository{db: conn}
}

// WithTx returns a copy of the repository bound to tx
func (r *APIKeyRepository) WithTx(tx db.DBTX) *APIKeyRepository {
	return &APIKeyRepository{db: tx}
}

// Create stores a new key for key.UserID. Returns ErrDuplicate if the user
// already holds an active key or the hash collides.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (user_id, key_hash, key_prefix)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query, key.UserID, key.KeyHash, key.KeyPrefix).
		Scan(&key.ID, &key.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// GetActiveByHash resolves an active key and its owner in one query.
// Returns (nil, nil) when no active key has this hash.
func (r *APIKeyRepository) GetActiveByHash(ctx context.Context, keyHash string) (*models.Credential, error) {
	query := `
		SELECT k.id, k.user_id, k.key_hash, k.key_prefix, k.created_at, k.last_used_at, k.revoked_at,
		       u.id, u.email, u.name, u.role, u.created_at, u.updated_at
		FROM api_keys k
		JOIN users u ON u.id = k.user_id
		WHERE k.key_hash = $1 AND k.revoked_at IS NULL
	`

	cred := &models.Credential{}
	err := r.db.QueryRowContext(ctx, query, keyHash).Scan(
		&cred.Key.ID,
		&cred.Key.UserID,
		&cred.Key.KeyHash,
		&cred.Key.KeyPrefix,
		&cred.Key.CreatedAt,
		&cred.Key.LastUsedAt,
		&cred.Key.RevokedAt,
		&cred.User.ID,
		&cred.User.Email,
		&cred.User.Name,
		&cred.User.Role,
		&cred.User.CreatedAt,
		&cred.User.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// RevokeActiveByHash revokes the active key with this hash and returns it.
// Returns (nil, nil) when no active key matched, which includes the case
// where a concurrent rotation revoked it first.
func (r *APIKeyRepository) RevokeActiveByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := `
		UPDATE api_keys
		SET revoked_at = NOW()
		WHERE key_hash = $1 AND revoked_at IS NULL
		RETURNING id, user_id, key_hash, key_prefix, created_at, last_used_at, revoked_at
	`

	key := &models.APIKey{}
	err := r.db.QueryRowContext(ctx, query, keyHash).Scan(
		&key.ID,
		&key.UserID,
		&key.KeyHash,
		&key.KeyPrefix,
		&key.CreatedAt,
		&key.LastUsedAt,
		&key.RevokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to revoke api key: %w", err)
	}
	return key, nil
}

// RevokeAllForUser revokes every active key of a user. Used by admin key reissue.
func (r *APIKeyRepository) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateLastUsed updates the last used timestamp
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, keyID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, keyID)
	return err
}
