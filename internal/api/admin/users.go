// users.go implements admin account management: creating accounts with an explicit
// role, listing, updating name or role, and reissuing a user's API key.
package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/model-registry/model-registry/internal/api/params"
	"github.com/model-registry/model-registry/internal/api/respond"
	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/services"
)

// UserAdmin is the part of the credential store used by admin user management
type UserAdmin interface {
	CreateUser(ctx context.Context, email, name string, role models.Role) (*models.User, string, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateUser(ctx context.Context, id int64, name *string, role *models.Role) (*models.User, error)
	ReissueKey(ctx context.Context, userID int64) (string, error)
}

// UserHandlers handles user management endpoints
type UserHandlers struct {
	users UserAdmin
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(users UserAdmin) *UserHandlers {
	return &UserHandlers{users: users}
}

// CreateUserRequest represents the request to create a new user
type CreateUserRequest struct {
	Email string      `json:"email" binding:"required,max=320"`
	Name  string      `json:"name" binding:"required,max=200"`
	Role  models.Role `json:"role" binding:"required"`
}

// CreateUserResponse returns the new account with its first key
type CreateUserResponse struct {
	User   *models.User `json:"user"`
	APIKey string       `json:"api_key"`
}

// CreateUserHandler creates an account with an explicit role
// POST /v1/admin/users
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}

		user, key, err := h.users.CreateUser(c.Request.Context(), req.Email, req.Name, req.Role)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusCreated, CreateUserResponse{User: user, APIKey: key})
	}
}

// ListUsersHandler lists accounts with pagination
// GET /v1/admin/users?limit=50&offset=0
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := params.IntInRange(c, "limit", 50, 1, 500)
		if err != nil {
			respond.Error(c, err)
			return
		}
		offset, err := params.NonNegative(c, "offset", 0)
		if err != nil {
			respond.Error(c, err)
			return
		}

		users, total, err := h.users.ListUsers(c.Request.Context(), limit, offset)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users": users,
			"pagination": gin.H{
				"limit":  limit,
				"offset": offset,
				"total":  total,
			},
		})
	}
}

// GetUserHandler returns one account
// GET /v1/admin/users/:id
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}

		user, err := h.users.GetUser(c.Request.Context(), id)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// UpdateUserRequest represents the request to update a user. Absent fields are kept.
type UpdateUserRequest struct {
	Name *string      `json:"name" binding:"omitempty,min=1,max=200"`
	Role *models.Role `json:"role"`
}

// UpdateUserHandler changes a user's name or role
// PATCH /v1/admin/users/:id
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}

		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}

		user, err := h.users.UpdateUser(c.Request.Context(), id, req.Name, req.Role)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// ReissueKeyHandler revokes every active key of a user and issues a new one
// POST /v1/admin/users/:id/rotate-key
func (h *UserHandlers) ReissueKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}

		key, err := h.users.ReissueKey(c.Request.Context(), id)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id, "api_key": key})
	}
}

// pathID parses the :id path parameter; on failure the 400 has been written
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(c, services.InvalidArgument("id must be a positive integer"))
		return 0, false
	}
	return id, true
}
