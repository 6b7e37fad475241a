package models

// UsageTotals aggregates access events in a window
type UsageTotals struct {
	Events     int64 `json:"events" db:"events"`
	Manifests  int64 `json:"manifests" db:"manifests"`
	FilesList  int64 `json:"files_list" db:"files_list"`
	Downloads  int64 `json:"downloads" db:"downloads"`
	LastSeenTS int64 `json:"-" db:"last_seen_ts"`
}

// ModelDownloads is a row of the top-models ranking
type ModelDownloads struct {
	RepoID    string `json:"repo_id" db:"repo_id"`
	Downloads int64  `json:"downloads" db:"downloads"`
}

// UserActivity is a row of the top-users ranking
type UserActivity struct {
	UserID     int64  `json:"user_id" db:"user_id"`
	Email      string `json:"email" db:"email"`
	Name       string `json:"name" db:"name"`
	Events     int64  `json:"events" db:"events"`
	Downloads  int64  `json:"downloads" db:"downloads"`
	LastSeenTS int64  `json:"last_seen_ts" db:"last_seen_ts"`
}

// DailyUsage is one bucket of the daily time series. Day is YYYY-MM-DD in UTC.
type DailyUsage struct {
	Day       string `json:"day" db:"day"`
	Events    int64  `json:"events" db:"events"`
	Downloads int64  `json:"downloads" db:"downloads"`
}
