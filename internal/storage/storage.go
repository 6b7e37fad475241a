// Package storage defines the Storage interface and common types for the object
// storage backends that hold mirrored model files and exported manifests.
//
// New backends are added by implementing the Storage interface and registering
// with the factory via an init() function in the backend's own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// The main package imports each backend with a blank import to trigger init().
package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"strings"
	"time"
)

// ErrObjectNotFound is returned (wrapped) when an object key does not exist
var ErrObjectNotFound = errors.New("object not found")

// Storage defines the interface for all storage backends
type Storage interface {
	// Upload stores an object and returns the storage result with path and checksum
	Upload(ctx context.Context, path string, reader io.Reader, size int64) (*UploadResult, error)

	// Download retrieves an object and returns a reader
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// GetURL returns a signed download URL valid for ttl.
	// Returns an error wrapping ErrObjectNotFound when the object does not exist.
	GetURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// Exists checks if an object exists at the specified path
	Exists(ctx context.Context, path string) (bool, error)
}

// SignedURLVerifier is implemented by backends that serve their own signed URLs
// through the registry (the local filesystem backend).
type SignedURLVerifier interface {
	VerifySignedURL(path string, expires int64, signature string, now time.Time) error
}

// UploadResult contains information about an uploaded object
type UploadResult struct {
	// Path is the storage path where the object was stored
	Path string

	// Size is the object size in bytes
	Size int64

	// Checksum is the SHA256 hash of the object contents
	Checksum string
}

// weightTypes are model file extensions that mime does not know or maps to
// something a browser would try to render
var weightTypes = map[string]string{
	".safetensors": "application/octet-stream",
	".bin":         "application/octet-stream",
	".pt":          "application/octet-stream",
	".pth":         "application/octet-stream",
	".ckpt":        "application/octet-stream",
	".gguf":        "application/octet-stream",
	".onnx":        "application/octet-stream",
	".msgpack":     "application/octet-stream",
	".h5":          "application/octet-stream",
	".model":       "application/octet-stream",
	".json":        "application/json",
	".md":          "text/markdown; charset=utf-8",
	".txt":         "text/plain; charset=utf-8",
}

// ContentType returns the MIME type stored with, and served for, an object key
func ContentType(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if t, ok := weightTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Disposition is the Content-Disposition of a download of key, so that the
// client saves the object under its file name rather than the full object key
func Disposition(key string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)})
}
