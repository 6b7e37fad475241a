package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/model-registry/model-registry/internal/storage"
	"github.com/model-registry/model-registry/internal/telemetry"
)

const (
	// MinExpires is the shortest presigned URL lifetime in seconds
	MinExpires = 60
	// MaxExpires is the longest presigned URL lifetime in seconds
	MaxExpires = 86400
)

// PresignedURL is the response shape of a URL issuance
type PresignedURL struct {
	ObjectKey string `json:"object_key"`
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

// ValidateExpires checks a requested URL lifetime
func ValidateExpires(expires int) error {
	if expires < MinExpires || expires > MaxExpires {
		return InvalidArgumentf("expires must be between %d and %d seconds", MinExpires, MaxExpires)
	}
	return nil
}

// URLIssuer bounds URL lifetimes and delegates signing to the storage backend
type URLIssuer struct {
	store storage.Storage
}

// NewURLIssuer creates a URLIssuer
func NewURLIssuer(store storage.Storage) *URLIssuer {
	return &URLIssuer{store: store}
}

// Issue returns a time-limited URL for objectKey. A key the backend cannot
// sign (typically a missing object) is NotFound("object not accessible: <key>"),
// which callers can tell apart from a missing catalog file.
func (i *URLIssuer) Issue(ctx context.Context, objectKey string, expires int) (*PresignedURL, error) {
	if err := ValidateExpires(expires); err != nil {
		telemetry.PresignTotal.WithLabelValues("invalid_expiry").Inc()
		return nil, err
	}

	url, err := i.store.GetURL(ctx, objectKey, time.Duration(expires)*time.Second)
	if err != nil {
		telemetry.PresignTotal.WithLabelValues("unavailable").Inc()
		slog.Warn("presign failed", "object_key", objectKey, "error", err)
		return nil, NotFound("object not accessible: " + objectKey)
	}

	telemetry.PresignTotal.WithLabelValues("ok").Inc()
	return &PresignedURL{ObjectKey: objectKey, URL: url, ExpiresIn: expires}, nil
}
