package rbac

import "strings"

// ParseClaims turns the provider's untyped custom claims into Claims.
// Unknown roles fall back to RoleUser and permissions outside the catalog are
// dropped, so callers never have to re-check the shape.
func ParseClaims(raw map[string]any) Claims {
	claims := Claims{Role: RoleUser}
	if raw == nil {
		return claims
	}
	if v, ok := raw["role"].(string); ok {
		role := Role(strings.ToLower(strings.TrimSpace(v)))
		if role.Valid() {
			claims.Role = role
		}
	}
	claims.Permissions = parsePermissions(raw["permissions"])
	return claims
}

func parsePermissions(v any) []Permission {
	var values []string
	switch list := v.(type) {
	case []string:
		values = list
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
	default:
		return nil
	}
	seen := make(map[Permission]struct{}, len(values))
	out := make([]Permission, 0, len(values))
	for _, s := range values {
		p, ok := Lookup(s)
		if !ok {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Raw converts Claims back to the provider's untyped representation.
func (c Claims) Raw() map[string]any {
	perms := make([]any, 0, len(c.Permissions))
	for _, p := range c.Permissions {
		perms = append(perms, string(p))
	}
	return map[string]any{
		"role":        string(c.Role),
		"permissions": perms,
	}
}
