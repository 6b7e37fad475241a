// access_log_repository.go implements AccessLogRepository: the append-only
// usage event log and the aggregation queries behind the usage reports.
package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/model-registry/model-registry/internal/db/models"
)

// AccessLogRepository handles access log database operations
type AccessLogRepository struct {
	db *sqlx.DB
}

// NewAccessLogRepository creates a new AccessLogRepository
func NewAccessLogRepository(db *sqlx.DB) *AccessLogRepository {
	return &AccessLogRepository{db: db}
}

// UsageQuery selects access events with since <= ts <= until, optionally for
// a single user.
type UsageQuery struct {
	Since  int64
	Until  int64
	UserID *int64
}

// where renders the shared predicate. Placeholders start at $1.
func (q UsageQuery) where() (string, []any) {
	clause := "l.ts BETWEEN $1 AND $2"
	args := []any{q.Since, q.Until}
	if q.UserID != nil {
		clause += " AND l.user_id = $3"
		args = append(args, *q.UserID)
	}
	return clause, args
}

// downloadOK matches events counted as downloads
const downloadOK = "l.event_type = 'download' AND l.status = 'ok'"

// Insert appends one access event
func (r *AccessLogRepository) Insert(ctx context.Context, entry *models.AccessLogEntry) error {
	query := `
		INSERT INTO access_logs (ts, user_id, api_key_id, event_type, repo_id, rfilename,
		                         object_key, size, status, remote_addr, user_agent)
		VALUES (:ts, :user_id, :api_key_id, :event_type, :repo_id, :rfilename,
		        :object_key, :size, :status, :remote_addr, :user_agent)
	`

	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to insert access log: %w", err)
	}
	return nil
}

// Totals counts events by type in the window
func (r *AccessLogRepository) Totals(ctx context.Context, q UsageQuery) (*models.UsageTotals, error) {
	where, args := q.where()
	query := `
		SELECT COUNT(*) AS events,
		       COUNT(*) FILTER (WHERE l.event_type = 'manifest') AS manifests,
		       COUNT(*) FILTER (WHERE l.event_type = 'files_list') AS files_list,
		       COUNT(*) FILTER (WHERE ` + downloadOK + `) AS downloads,
		       COALESCE(MAX(l.ts), 0) AS last_seen_ts
		FROM access_logs l
		WHERE ` + where

	var t models.UsageTotals
	if err := r.db.GetContext(ctx, &t, query, args...); err != nil {
		return nil, fmt.Errorf("failed to compute usage totals: %w", err)
	}
	return &t, nil
}

// DistinctModels counts the repositories touched in the window
func (r *AccessLogRepository) DistinctModels(ctx context.Context, q UsageQuery) (int64, error) {
	where, args := q.where()
	query := `SELECT COUNT(DISTINCT l.repo_id) FROM access_logs l WHERE l.repo_id IS NOT NULL AND ` + where

	var n int64
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count distinct models: %w", err)
	}
	return n, nil
}

// TopModels ranks repositories by successful downloads, ties by repo id
func (r *AccessLogRepository) TopModels(ctx context.Context, q UsageQuery, limit int) ([]models.ModelDownloads, error) {
	where, args := q.where()
	query := fmt.Sprintf(`
		SELECT l.repo_id, COUNT(*) AS downloads
		FROM access_logs l
		WHERE %s AND l.repo_id IS NOT NULL AND %s
		GROUP BY l.repo_id
		ORDER BY downloads DESC, l.repo_id ASC
		LIMIT $%d`, downloadOK, where, len(args)+1)
	args = append(args, limit)

	out := []models.ModelDownloads{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to rank models: %w", err)
	}
	return out, nil
}

// TopUsers ranks users by downloads, then events, then user id
func (r *AccessLogRepository) TopUsers(ctx context.Context, q UsageQuery, limit int) ([]models.UserActivity, error) {
	where, args := q.where()
	query := fmt.Sprintf(`
		SELECT u.id AS user_id, u.email, u.name,
		       COUNT(*) AS events,
		       COUNT(*) FILTER (WHERE %s) AS downloads,
		       MAX(l.ts) AS last_seen_ts
		FROM access_logs l
		JOIN users u ON u.id = l.user_id
		WHERE %s
		GROUP BY u.id, u.email, u.name
		ORDER BY downloads DESC, events DESC, u.id ASC
		LIMIT $%d`, downloadOK, where, len(args)+1)
	args = append(args, limit)

	out := []models.UserActivity{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to rank users: %w", err)
	}
	return out, nil
}

// Daily returns per-day counts for days that have events. Days are UTC
// calendar days; the caller fills the gaps.
func (r *AccessLogRepository) Daily(ctx context.Context, q UsageQuery) ([]models.DailyUsage, error) {
	where, args := q.where()
	query := `
		SELECT to_char(to_timestamp(l.ts) AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       COUNT(*) AS events,
		       COUNT(*) FILTER (WHERE ` + downloadOK + `) AS downloads
		FROM access_logs l
		WHERE ` + where + `
		GROUP BY day
		ORDER BY day ASC`

	out := []models.DailyUsage{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to compute daily usage: %w", err)
	}
	return out, nil
}

// CountSince counts all events with ts >= since
func (r *AccessLogRepository) CountSince(ctx context.Context, since int64) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM access_logs WHERE ts >= $1`, since); err != nil {
		return 0, err
	}
	return n, nil
}
