// Package params parses and bounds-checks query string parameters. Failures are
// returned as services.InvalidArgument so handlers can pass them to respond.Error.
package params

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/services"
)

// OptionalInt64 returns nil when name is absent or empty
func OptionalInt64(c *gin.Context, name string) (*int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, services.InvalidArgumentf("%s must be an integer", name)
	}
	return &v, nil
}

// RequiredInt64 fails when name is absent
func RequiredInt64(c *gin.Context, name string) (int64, error) {
	v, err := OptionalInt64(c, name)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, services.InvalidArgumentf("%s is required", name)
	}
	return *v, nil
}

// IntInRange returns def when name is absent and rejects values outside [lo, hi]
func IntInRange(c *gin.Context, name string, def, lo, hi int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.InvalidArgumentf("%s must be an integer", name)
	}
	if v < lo || v > hi {
		return 0, services.InvalidArgumentf("%s must be between %d and %d", name, lo, hi)
	}
	return v, nil
}

// NonNegative returns def when name is absent and rejects negative values
func NonNegative(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, services.InvalidArgumentf("%s must be a non-negative integer", name)
	}
	return v, nil
}

// Bool accepts the strconv.ParseBool spellings; absent means false
func Bool(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, services.InvalidArgumentf("%s must be a boolean", name)
	}
	return v, nil
}

// Expires reads the presigned URL lifetime, defaulting to def. The range check
// belongs to the issuer.
func Expires(c *gin.Context, def int) (int, error) {
	raw := c.Query("expires")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.InvalidArgument("expires must be an integer")
	}
	return v, nil
}
