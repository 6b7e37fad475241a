// stats.go implements the admin dashboard statistics: catalog size, accounts and
// recent access volume.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/model-registry/model-registry/internal/api/respond"
)

// StatsHandler handles stats-related API requests
type StatsHandler struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(database *sqlx.DB) *StatsHandler {
	return &StatsHandler{
		db:  database,
		now: time.Now,
	}
}

// DashboardStats represents the response for dashboard statistics
type DashboardStats struct {
	Catalog  CatalogStats  `json:"catalog"`
	Accounts AccountStats  `json:"accounts"`
	Activity ActivityStats `json:"activity"`
}

// CatalogStats counts mirrored models and files
type CatalogStats struct {
	Models        int64 `json:"models" db:"models"`
	PublicModels  int64 `json:"public_models" db:"public_models"`
	PrivateModels int64 `json:"private_models" db:"private_models"`
	Versions      int64 `json:"versions" db:"versions"`
	Files         int64 `json:"files" db:"files"`
	TotalBytes    int64 `json:"total_bytes" db:"total_bytes"`
}

// AccountStats counts users by role and access grants
type AccountStats struct {
	Users      int64 `json:"users" db:"users"`
	Developers int64 `json:"developers" db:"developers"`
	Platform   int64 `json:"platform" db:"platform"`
	Admins     int64 `json:"admins" db:"admins"`
	ActiveKeys int64 `json:"active_keys" db:"active_keys"`
	Grants     int64 `json:"grants" db:"grants"`
}

// ActivityStats counts access events of the last 24 hours
type ActivityStats struct {
	Since       int64 `json:"since"`
	Events      int64 `json:"events" db:"events"`
	Downloads   int64 `json:"downloads" db:"downloads"`
	Denied      int64 `json:"denied" db:"denied"`
	ActiveUsers int64 `json:"active_users" db:"active_users"`
}

// GetDashboardStats returns dashboard statistics, one query per section
// GET /v1/admin/stats
func (h *StatsHandler) GetDashboardStats(c *gin.Context) {
	ctx := c.Request.Context()
	var stats DashboardStats

	err := h.db.GetContext(ctx, &stats.Catalog, `
		SELECT
			(SELECT COUNT(*) FROM models) AS models,
			(SELECT COUNT(*) FROM models WHERE visibility = 'public') AS public_models,
			(SELECT COUNT(*) FROM models WHERE visibility = 'private') AS private_models,
			(SELECT COUNT(*) FROM model_versions) AS versions,
			(SELECT COUNT(*) FROM files) AS files,
			(SELECT COALESCE(SUM(size), 0) FROM files) AS total_bytes
	`)
	if err != nil {
		respond.Error(c, err)
		return
	}

	err = h.db.GetContext(ctx, &stats.Accounts, `
		SELECT
			COUNT(*) AS users,
			COUNT(*) FILTER (WHERE role = 'developer') AS developers,
			COUNT(*) FILTER (WHERE role = 'platform') AS platform,
			COUNT(*) FILTER (WHERE role = 'admin') AS admins,
			(SELECT COUNT(*) FROM api_keys WHERE revoked_at IS NULL) AS active_keys,
			(SELECT COUNT(*) FROM grants) AS grants
		FROM users
	`)
	if err != nil {
		respond.Error(c, err)
		return
	}

	stats.Activity.Since = h.now().Add(-24 * time.Hour).Unix()
	err = h.db.GetContext(ctx, &stats.Activity, `
		SELECT
			COUNT(*) AS events,
			COUNT(*) FILTER (WHERE event_type = 'download' AND status = 'ok') AS downloads,
			COUNT(*) FILTER (WHERE status = 'denied') AS denied,
			COUNT(DISTINCT user_id) AS active_users
		FROM access_logs
		WHERE ts >= $1
	`, stats.Activity.Since)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
