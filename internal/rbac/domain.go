package rbac

import (
	"strings"
	"time"
)

// Role is the coarse role carried in a principal's custom claims.
type Role string

const (
	RoleSuperAdmin Role = "super-admin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// Permission is a resource:action capability drawn from the fixed catalog.
type Permission string

// Permission catalog.
const (
	PermWorkspaceRead      Permission = "workspace:read"
	PermDashboardRead      Permission = "dashboard:read"
	PermReportsGenerate    Permission = "reports:generate"
	PermBillingConsolidate Permission = "billing:consolidate"
	PermDocumentsMerge     Permission = "documents:merge"
	PermSettingsRead       Permission = "settings:read"
	PermSettingsWrite      Permission = "settings:write"
	PermUsersRead          Permission = "users:read"
	PermUsersWrite         Permission = "users:write"
	PermAuditRead          Permission = "audit:read"
)

var catalog = []Permission{
	PermWorkspaceRead,
	PermDashboardRead,
	PermReportsGenerate,
	PermBillingConsolidate,
	PermDocumentsMerge,
	PermSettingsRead,
	PermSettingsWrite,
	PermUsersRead,
	PermUsersWrite,
	PermAuditRead,
}

var catalogIndex = func() map[Permission]struct{} {
	idx := make(map[Permission]struct{}, len(catalog))
	for _, p := range catalog {
		idx[p] = struct{}{}
	}
	return idx
}()

// Catalog returns every known permission in declaration order.
func Catalog() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup resolves a raw string against the catalog. The returned Permission is
// always the catalog constant, never the input string.
func Lookup(raw string) (Permission, bool) {
	key := Permission(strings.ToLower(strings.TrimSpace(raw)))
	for _, p := range catalog {
		if p == key {
			return p, true
		}
	}
	return "", false
}

// Valid reports whether p belongs to the catalog.
func (p Permission) Valid() bool {
	_, ok := catalogIndex[p]
	return ok
}

// IsBaseAccess reports whether p is implied by holding any other permission.
func (p Permission) IsBaseAccess() bool {
	return p == PermWorkspaceRead || p == PermDashboardRead
}

// Claims is the typed form of the identity provider's custom claims.
type Claims struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

// Assignment is a stored claims row for one subject.
type Assignment struct {
	UID       string
	Claims    Claims
	UpdatedAt time.Time
	UpdatedBy string
}
