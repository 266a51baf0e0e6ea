package rbac

// HasPermission decides whether claims grant the required permission.
//
// A super-admin holds everything. Otherwise an empty permission list denies,
// exact membership allows, and the base-access permissions are implied by any
// non-empty grant.
func HasPermission(c Claims, required Permission) bool {
	if c.Role == RoleSuperAdmin {
		return true
	}
	if len(c.Permissions) == 0 {
		return false
	}
	for _, p := range c.Permissions {
		if p == required {
			return true
		}
	}
	return required.IsBaseAccess()
}

// HasAnyPermission reports whether at least one required permission is held.
// An empty requirement is satisfied.
func HasAnyPermission(c Claims, required []Permission) bool {
	if len(required) == 0 {
		return true
	}
	for _, p := range required {
		if HasPermission(c, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every required permission is held.
func HasAllPermissions(c Claims, required []Permission) bool {
	for _, p := range required {
		if !HasPermission(c, p) {
			return false
		}
	}
	return true
}

// Granted lists the catalog permissions the claims effectively hold.
func Granted(c Claims) []Permission {
	out := make([]Permission, 0, len(catalog))
	for _, p := range catalog {
		if HasPermission(c, p) {
			out = append(out, p)
		}
	}
	return out
}
