package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/api/params"
	"github.com/model-registry/model-registry/internal/api/respond"
	"github.com/model-registry/model-registry/internal/services"
)

// UsageReporter produces the cross-user usage report
type UsageReporter interface {
	UsageAdmin(ctx context.Context, since, until *int64, topUsersLimit, topModelsLimit int, filterUserID *int64, filterEmail *string) (*services.AdminUsageReport, error)
}

// UsageHandlers serves the admin usage report
type UsageHandlers struct {
	usage UsageReporter
}

// NewUsageHandlers creates a new UsageHandlers instance
func NewUsageHandlers(usage UsageReporter) *UsageHandlers {
	return &UsageHandlers{usage: usage}
}

// UsageHandler reports activity across users
// GET /v1/admin/usage?since=&until=&top_users_limit=&top_models_limit=&filter_user_id=&filter_email=
func (h *UsageHandlers) UsageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		since, err := params.OptionalInt64(c, "since")
		if err != nil {
			respond.Error(c, err)
			return
		}
		until, err := params.OptionalInt64(c, "until")
		if err != nil {
			respond.Error(c, err)
			return
		}
		topUsers, err := params.IntInRange(c, "top_users_limit", 50, 1, 500)
		if err != nil {
			respond.Error(c, err)
			return
		}
		topModels, err := params.IntInRange(c, "top_models_limit", 100, 1, 1000)
		if err != nil {
			respond.Error(c, err)
			return
		}
		filterUserID, err := params.OptionalInt64(c, "filter_user_id")
		if err != nil {
			respond.Error(c, err)
			return
		}
		var filterEmail *string
		if email, ok := c.GetQuery("filter_email"); ok && email != "" {
			filterEmail = &email
		}

		report, err := h.usage.UsageAdmin(c.Request.Context(), since, until, topUsers, topModels, filterUserID, filterEmail)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
