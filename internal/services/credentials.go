package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/model-registry/model-registry/internal/auth"
	"github.com/model-registry/model-registry/internal/db"
	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/db/repositories"
	"github.com/model-registry/model-registry/internal/safego"
)

// CredentialStore owns users and their API keys. A user holds at most one active
// key; issuing a new key and revoking the old one always happen in one transaction.
type CredentialStore struct {
	db        *sql.DB
	users     *repositories.UserRepository
	keys      *repositories.APIKeyRepository
	keyPrefix string

	// lastUsedTimeout bounds the background last_used_at update
	lastUsedTimeout time.Duration
}

// NewCredentialStore creates a CredentialStore issuing keys with keyPrefix
func NewCredentialStore(database *sql.DB, keyPrefix string) *CredentialStore {
	if keyPrefix == "" {
		keyPrefix = auth.DefaultKeyPrefix
	}
	return &CredentialStore{
		db:              database,
		users:           repositories.NewUserRepository(database),
		keys:            repositories.NewAPIKeyRepository(database),
		keyPrefix:       keyPrefix,
		lastUsedTimeout: 5 * time.Second,
	}
}

// Register creates a developer account and issues its first key
func (s *CredentialStore) Register(ctx context.Context, email, name string) (*models.User, string, error) {
	return s.createWithKey(ctx, email, name, models.RoleDeveloper)
}

// CreateUser creates an account with an explicit role and issues its first key
func (s *CredentialStore) CreateUser(ctx context.Context, email, name string, role models.Role) (*models.User, string, error) {
	if !role.Valid() {
		return nil, "", InvalidArgumentf("invalid role: %q", role)
	}
	return s.createWithKey(ctx, email, name, role)
}

func (s *CredentialStore) createWithKey(ctx context.Context, email, name string, role models.Role) (*models.User, string, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" {
		return nil, "", InvalidArgument("email is required")
	}
	if name == "" {
		return nil, "", InvalidArgument("name is required")
	}

	plaintext, hash, prefix, err := auth.GenerateAPIKey(s.keyPrefix)
	if err != nil {
		return nil, "", err
	}

	user := &models.User{Email: email, Name: name, Role: role}
	err = db.WithTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := s.users.WithTx(tx).Create(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return Conflict("email already registered")
			}
			return err
		}
		return s.keys.WithTx(tx).Create(ctx, &models.APIKey{UserID: user.ID, KeyHash: hash, KeyPrefix: prefix})
	})
	if err != nil {
		return nil, "", err
	}

	slog.Info("user created", "user_id", user.ID, "role", user.Role, "key_prefix", prefix)
	return user, plaintext, nil
}

// RotateKey revokes currentKey and issues a replacement for the same user. The
// revoke is conditional on the key still being active, so of two concurrent
// rotations with the same key exactly one succeeds and the other is Unauthorized.
func (s *CredentialStore) RotateKey(ctx context.Context, currentKey string) (int64, string, error) {
	currentKey = auth.NormalizeAPIKey(currentKey)
	if currentKey == "" {
		return 0, "", Unauthorized("missing x-api-key")
	}

	plaintext, hash, prefix, err := auth.GenerateAPIKey(s.keyPrefix)
	if err != nil {
		return 0, "", err
	}

	var userID int64
	err = db.WithTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		keys := s.keys.WithTx(tx)
		old, err := keys.RevokeActiveByHash(ctx, auth.HashAPIKey(currentKey))
		if err != nil {
			return err
		}
		if old == nil {
			return Unauthorized("invalid or revoked api key")
		}
		userID = old.UserID
		if err := keys.Create(ctx, &models.APIKey{UserID: userID, KeyHash: hash, KeyPrefix: prefix}); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return Conflict("concurrent key rotation, retry")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, "", err
	}

	slog.Info("api key rotated", "user_id", userID, "key_prefix", prefix)
	return userID, plaintext, nil
}

// ReissueKey revokes every active key of userID and issues a new one
func (s *CredentialStore) ReissueKey(ctx context.Context, userID int64) (string, error) {
	plaintext, hash, prefix, err := auth.GenerateAPIKey(s.keyPrefix)
	if err != nil {
		return "", err
	}

	err = db.WithTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		user, err := s.users.WithTx(tx).GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return NotFound("user not found")
		}
		keys := s.keys.WithTx(tx)
		if _, err := keys.RevokeAllForUser(ctx, userID); err != nil {
			return fmt.Errorf("failed to revoke keys: %w", err)
		}
		return keys.Create(ctx, &models.APIKey{UserID: userID, KeyHash: hash, KeyPrefix: prefix})
	})
	if err != nil {
		return "", err
	}

	slog.Info("api key reissued", "user_id", userID, "key_prefix", prefix)
	return plaintext, nil
}

// Authenticate resolves an active key to its credential. It does not write
// access logs; last_used_at is refreshed in the background.
func (s *CredentialStore) Authenticate(ctx context.Context, key string) (*models.Credential, error) {
	key = auth.NormalizeAPIKey(key)
	if key == "" {
		return nil, Unauthorized("missing x-api-key")
	}

	cred, err := s.keys.GetActiveByHash(ctx, auth.HashAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	if cred == nil {
		return nil, Unauthorized("invalid or revoked api key")
	}

	keyID := cred.Key.ID
	safego.Go(func() {
		bg, cancel := context.WithTimeout(context.Background(), s.lastUsedTimeout)
		defer cancel()
		if err := s.keys.UpdateLastUsed(bg, keyID); err != nil {
			slog.Debug("failed to update api key last_used_at", "key_id", keyID, "error", err)
		}
	})

	return cred, nil
}

// GetUser returns a user by id
func (s *CredentialStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NotFound("user not found")
	}
	return user, nil
}

// GetUserByEmail returns a user by email
func (s *CredentialStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NotFound("user not found")
	}
	return user, nil
}

// UpdateUser changes a user's name and/or role
func (s *CredentialStore) UpdateUser(ctx context.Context, id int64, name *string, role *models.Role) (*models.User, error) {
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, InvalidArgument("name must not be empty")
		}
		name = &trimmed
	}
	if role != nil && !role.Valid() {
		return nil, InvalidArgumentf("invalid role: %q", *role)
	}

	user, err := s.users.Update(ctx, id, name, role)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, NotFound("user not found")
	}
	return user, nil
}

// ListUsers pages through users ordered by id
func (s *CredentialStore) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	if limit < 1 || limit > 500 {
		return nil, 0, InvalidArgument("limit must be between 1 and 500")
	}
	if offset < 0 {
		return nil, 0, InvalidArgument("offset must be >= 0")
	}
	return s.users.List(ctx, limit, offset)
}
