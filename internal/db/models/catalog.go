package models

import "time"

// Visibility gates catalog listing for non-owners
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is a known visibility value
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Model is a catalog entry keyed by its hub repository id ("author/name").
type Model struct {
	RepoID             string     `json:"repo_id" db:"repo_id"`
	CanonicalURL       *string    `json:"canonical_url" db:"canonical_url"`
	ModelName          *string    `json:"model_name" db:"model_name"`
	Author             *string    `json:"author" db:"author"`
	PipelineTag        *string    `json:"pipeline_tag" db:"pipeline_tag"`
	License            *string    `json:"license" db:"license"`
	Parameters         *int64     `json:"parameters" db:"parameters"`
	ParametersReadable *string    `json:"parameters_readable" db:"parameters_readable"`
	Downloads          int64      `json:"downloads" db:"downloads"`
	Likes              int64      `json:"likes" db:"likes"`
	CreatedAt          *string    `json:"created_at" db:"hub_created_at"`
	LastModified       *string    `json:"last_modified" db:"last_modified"`
	Languages          []string   `json:"languages" db:"languages"`
	Tags               []string   `json:"tags" db:"tags"`
	FileCount          int        `json:"file_count" db:"file_count"`
	HasSafetensors     bool       `json:"has_safetensors" db:"has_safetensors"`
	HasBin             bool       `json:"has_bin" db:"has_bin"`
	OwnerUserID        *int64     `json:"owner_user_id" db:"owner_user_id"`
	Visibility         Visibility `json:"visibility" db:"visibility"`
	LastUpdateTS       *int64     `json:"last_update_ts" db:"last_update_ts"`
}

// OwnedBy reports whether userID owns the model
func (m *Model) OwnedBy(userID int64) bool {
	return m != nil && m.OwnerUserID != nil && *m.OwnerUserID == userID
}

// ModelVersion is a named release of a model
type ModelVersion struct {
	ID        int64     `json:"id" db:"id"`
	RepoID    string    `json:"repo_id" db:"repo_id"`
	Version   string    `json:"version" db:"version"`
	Notes     *string   `json:"notes" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FileRecord is a file belonging to a model. Version is "" for unversioned files.
type FileRecord struct {
	RepoID    string  `json:"repo_id" db:"repo_id"`
	RFilename string  `json:"rfilename" db:"rfilename"`
	Version   string  `json:"version,omitempty" db:"version"`
	Size      *int64  `json:"size" db:"size"`
	SHA256    *string `json:"sha256" db:"sha256"`
	UpdatedTS *int64  `json:"updated_ts" db:"updated_ts"`
}

// UploadRecord records where the mirroring pipeline actually put a file. When
// present it overrides the derived object key.
type UploadRecord struct {
	ID         int64  `db:"id"`
	Target     string `db:"target"`
	Bucket     string `db:"bucket"`
	ObjectKey  string `db:"object_key"`
	RepoID     string `db:"repo_id"`
	RFilename  string `db:"rfilename"`
	Version    string `db:"version"`
	Size       *int64 `db:"size"`
	UploadedTS int64  `db:"uploaded_ts"`
}

// ModelChange is one row of the change feed
type ModelChange struct {
	RepoID       string `json:"repo_id" db:"repo_id"`
	LastUpdateTS int64  `json:"last_update_ts" db:"last_update_ts"`
}
