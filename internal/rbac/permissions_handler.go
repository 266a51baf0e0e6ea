package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nia-ro/workdesk/internal/platform/httpx"
)

// RouteGuard wraps API handlers with authorization and auditing.
type RouteGuard interface {
	API(action string, perms ...Permission) func(http.Handler) http.Handler
}

// PermissionsHandler exposes the permission catalog.
type PermissionsHandler struct {
	guard    RouteGuard
	finisher *httpx.Finisher
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(guard RouteGuard, finisher *httpx.Finisher) *PermissionsHandler {
	return &PermissionsHandler{guard: guard, finisher: finisher}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.With(h.guard.API("permissions.list", PermSettingsRead)).Get("/permissions", h.listPermissions)
}

type catalogEntry struct {
	Permission Permission `json:"permission"`
	BaseAccess bool       `json:"base_access"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	catalog := Catalog()
	out := make([]catalogEntry, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, catalogEntry{Permission: p, BaseAccess: p.IsBaseAccess()})
	}
	roles := []Role{RoleSuperAdmin, RoleAdmin, RoleUser}
	h.finisher.JSON(w, r, http.StatusOK, map[string]any{"permissions": out, "roles": roles})
}
