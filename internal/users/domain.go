package users

import (
	"errors"
	"time"

	"github.com/nia-ro/workdesk/internal/rbac"
)

var (
	// ErrRoleEscalation is returned when a non super-admin grants or revokes super-admin.
	ErrRoleEscalation = errors.New("users: only a super-admin may change super-admin claims")
	// ErrUnknownPermission is returned for permissions outside the catalog.
	ErrUnknownPermission = errors.New("users: unknown permission")
)

// User is a staff account as listed to administrators.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	IsActive    bool      `json:"is_active"`
	Role        rbac.Role `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClaimsView is the API shape of a subject's claims.
type ClaimsView struct {
	UID         string            `json:"uid"`
	Role        rbac.Role         `json:"role"`
	Permissions []rbac.Permission `json:"permissions"`
	Effective   []rbac.Permission `json:"effective"`
	UpdatedAt   *time.Time        `json:"updated_at,omitempty"`
	UpdatedBy   string            `json:"updated_by,omitempty"`
}
