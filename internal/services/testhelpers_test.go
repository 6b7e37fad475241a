package services

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

var (
	userCols       = []string{"id", "email", "name", "role", "created_at", "updated_at"}
	apiKeyCols     = []string{"id", "user_id", "key_hash", "key_prefix", "created_at", "last_used_at", "revoked_at"}
	credentialCols = append(append([]string{}, apiKeyCols...),
		"u_id", "email", "name", "role", "u_created_at", "u_updated_at")
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database, mock
}

func newMockDBx(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	database, mock := newMockDB(t)
	return sqlx.NewDb(database, "sqlmock"), mock
}

func fixedClock(ts int64) func() time.Time {
	return func() time.Time { return time.Unix(ts, 0) }
}

func int64Ptr(v int64) *int64 { return &v }

func strPtr(s string) *string { return &s }

func detailOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Detail
	}
	return ""
}
