// Package models defines the database model types for the model registry.
// Each type corresponds to a database table and carries struct tags for JSON
// serialization and sqlx row scanning.
// Models are pure data types: business logic belongs in the services layer and
// query logic belongs in the repositories layer.
package models

import "time"

// Role is the coarse capability class of a registry account.
type Role string

const (
	RoleDeveloper Role = "developer"
	RolePlatform  Role = "platform"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleDeveloper, RolePlatform, RoleAdmin:
		return true
	}
	return false
}

// User represents a registry account
type User struct {
	ID        int64     `json:"user_id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
