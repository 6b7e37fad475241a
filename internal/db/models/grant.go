package models

import "time"

// GrantStatus is derived from a grant's window at query time. It is never stored.
type GrantStatus string

const (
	GrantPending GrantStatus = "pending"
	GrantActive  GrantStatus = "active"
	GrantExpired GrantStatus = "expired"
)

// Grant authorizes a platform-role user to read one repository within
// [PermittedFromTS, PermittedUntilTS). A nil PermittedUntilTS never expires.
type Grant struct {
	ID               int64     `json:"id" db:"id"`
	PlatformUserID   int64     `json:"platform_user_id" db:"platform_user_id"`
	RepoID           string    `json:"repo_id" db:"repo_id"`
	PermittedFromTS  int64     `json:"permitted_from_ts" db:"permitted_from_ts"`
	PermittedUntilTS *int64    `json:"permitted_until_ts" db:"permitted_until_ts"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// ActiveAt reports whether the grant window contains ts.
func (g *Grant) ActiveAt(ts int64) bool {
	return g.StatusAt(ts) == GrantActive
}

// StatusAt computes the grant's status at ts.
func (g *Grant) StatusAt(ts int64) GrantStatus {
	if ts < g.PermittedFromTS {
		return GrantPending
	}
	if g.PermittedUntilTS != nil && ts >= *g.PermittedUntilTS {
		return GrantExpired
	}
	return GrantActive
}
