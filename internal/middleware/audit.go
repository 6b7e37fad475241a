// audit.go ships admin mutations to the configured audit destinations. Usage events
// are shipped by services.Recorder; this middleware covers user, grant and model
// changes made through /v1/admin.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/audit"
	"github.com/model-registry/model-registry/internal/safego"
)

// auditShipTimeout bounds one Ship call
const auditShipTimeout = 5 * time.Second

// AuditMiddleware records every non-read request that reached a handler. Entries
// are shipped in the background; shipping failures are logged and never change
// the response.
func AuditMiddleware(shipper audit.Shipper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if shipper == nil {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		entry := &audit.LogEntry{
			Timestamp:  time.Now().UTC(),
			Action:     c.Request.Method + " " + routeOf(c),
			Status:     outcome(c.Writer.Status()),
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			StatusCode: c.Writer.Status(),
			Metadata:   map[string]any{},
		}
		if v, ok := c.Get(UserIDKey); ok {
			if uid, ok := v.(int64); ok {
				entry.UserID = &uid
			}
		}
		if v, ok := c.Get(APIKeyIDKey); ok {
			if kid, ok := v.(int64); ok {
				entry.APIKeyID = &kid
			}
		}
		if v, ok := c.Get(AuthMethodKey); ok {
			entry.AuthMethod, _ = v.(string)
		}
		if v, ok := c.Get(RequestIDKey); ok {
			entry.Metadata["request_id"] = v
		}
		for _, p := range c.Params {
			entry.Metadata[p.Key] = p.Value
		}

		safego.GoNamed("audit-ship", func() {
			ctx, cancel := context.WithTimeout(context.Background(), auditShipTimeout)
			defer cancel()
			if err := shipper.Ship(ctx, entry); err != nil {
				slog.Warn("failed to ship audit entry", "action", entry.Action, "error", err)
			}
		})
	}
}

func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

func outcome(status int) string {
	if status < 400 {
		return "ok"
	}
	return "failed"
}
