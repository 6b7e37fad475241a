// Package respond renders handler errors as {"detail": "..."} JSON bodies.
package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/services"
)

// requestIDKey matches middleware.RequestIDKey
const requestIDKey = "request_id"

// Status maps a service error kind to its HTTP status
func Status(kind services.Kind) int {
	switch kind {
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindInvalidArgument:
		return http.StatusBadRequest
	case services.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error aborts the request with the status and detail of err. Errors that are
// not *services.Error are logged and reported as a generic 500.
func Error(c *gin.Context, err error) {
	var se *services.Error
	if errors.As(err, &se) {
		c.AbortWithStatusJSON(Status(se.Kind), gin.H{"detail": se.Detail})
		return
	}

	requestID, _ := c.Get(requestIDKey)
	slog.ErrorContext(c.Request.Context(), "request failed",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"request_id", requestID,
		"error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
}

// Detail aborts with status and a literal detail message
func Detail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// BadRequest reports a binding or query parsing failure
func BadRequest(c *gin.Context, err error) {
	Detail(c, http.StatusBadRequest, err.Error())
}
