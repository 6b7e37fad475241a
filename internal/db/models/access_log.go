package models

// Event types recorded in access_logs
const (
	EventManifest  = "manifest"
	EventFilesList = "files_list"
	EventDownload  = "download"
	EventGeneric   = "event"
)

// Access outcome values for AccessLogEntry.Status
const (
	AccessOK        = "ok"
	AccessDenied    = "denied"
	AccessNotFound  = "not_found"
	AccessError     = "error"
	AccessBadParams = "invalid"
)

// AccessLogEntry is one append-only usage record. Rows are never updated or deleted.
type AccessLogEntry struct {
	ID         int64   `json:"id" db:"id"`
	TS         int64   `json:"ts" db:"ts"`
	UserID     *int64  `json:"user_id" db:"user_id"`
	APIKeyID   *int64  `json:"api_key_id" db:"api_key_id"`
	EventType  string  `json:"event_type" db:"event_type"`
	RepoID     *string `json:"repo_id" db:"repo_id"`
	RFilename  *string `json:"rfilename" db:"rfilename"`
	ObjectKey  *string `json:"object_key" db:"object_key"`
	Size       *int64  `json:"size" db:"size"`
	Status     string  `json:"status" db:"status"`
	RemoteAddr *string `json:"remote_addr" db:"remote_addr"`
	UserAgent  *string `json:"user_agent" db:"user_agent"`
}
