package users

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nia-ro/workdesk/internal/identity"
	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/rbac"
	"github.com/nia-ro/workdesk/internal/shared"
)

type memoryClaims struct {
	users map[string]bool
	rows  map[string]rbac.Assignment
}

func (m *memoryClaims) Assignment(ctx context.Context, uid string) (rbac.Assignment, error) {
	a, ok := m.rows[uid]
	if !ok {
		return rbac.Assignment{}, rbac.ErrNotFound
	}
	return a, nil
}

func (m *memoryClaims) SetClaims(ctx context.Context, uid string, claims rbac.Claims, updatedBy string) error {
	if !m.users[uid] {
		return rbac.ErrNotFound
	}
	m.rows[uid] = rbac.Assignment{UID: uid, Claims: claims, UpdatedAt: time.Now().UTC(), UpdatedBy: updatedBy}
	return nil
}

type stubDirectory struct{ users []User }

func (s stubDirectory) ListUsers(ctx context.Context) ([]User, error) { return s.users, nil }

type actorGuard struct{ actor identity.Principal }

func (g actorGuard) API(action string, perms ...rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), g.actor)))
		})
	}
}

func newRouter(actor identity.Principal, store *memoryClaims) http.Handler {
	svc := NewService(stubDirectory{users: []User{{ID: "u1", Email: "a@nia.gov.ph", Role: rbac.RoleAdmin}}}, store)
	h := NewHandler(nil, svc, actorGuard{actor: actor}, httpx.NewFinisher(false, nil))
	r := chi.NewRouter()
	r.Route("/api/users", h.MountRoutes)
	return r
}

func newStore() *memoryClaims {
	return &memoryClaims{
		users: map[string]bool{"u1": true, "root": true, "u2": true},
		rows: map[string]rbac.Assignment{
			"root": {UID: "root", Claims: rbac.Claims{Role: rbac.RoleSuperAdmin}},
			"u2":   {UID: "u2", Claims: rbac.Claims{Role: rbac.RoleUser, Permissions: []rbac.Permission{rbac.PermReportsGenerate}}},
		},
	}
}

var (
	superAdmin = identity.Principal{UID: "root", Claims: rbac.Claims{Role: rbac.RoleSuperAdmin}}
	admin      = identity.Principal{UID: "adm", Claims: rbac.Claims{Role: rbac.RoleAdmin, Permissions: []rbac.Permission{rbac.PermUsersRead, rbac.PermUsersWrite}}}
)

func put(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGetClaimsDefaultsForMissingRow(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(admin, newStore()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users/u1/claims", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var view ClaimsView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, rbac.RoleUser, view.Role)
	assert.Empty(t, view.Permissions)
	assert.Empty(t, view.Effective)
}

func TestGetClaimsShowsEffectivePermissions(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(admin, newStore()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users/u2/claims", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var view ClaimsView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.ElementsMatch(t, []rbac.Permission{rbac.PermReportsGenerate, rbac.PermWorkspaceRead, rbac.PermDashboardRead}, view.Effective)
}

func TestAdminUpdatesClaims(t *testing.T) {
	store := newStore()
	rr := put(newRouter(admin, store), "/api/users/u1/claims", `{"role":"admin","permissions":["billing:consolidate","Reports:Generate","billing:consolidate"]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	saved := store.rows["u1"]
	assert.Equal(t, rbac.RoleAdmin, saved.Claims.Role)
	assert.Equal(t, []rbac.Permission{rbac.PermBillingConsolidate, rbac.PermReportsGenerate}, saved.Claims.Permissions)
	assert.Equal(t, "adm", saved.UpdatedBy)
}

func TestOnlySuperAdminGrantsSuperAdmin(t *testing.T) {
	store := newStore()
	rr := put(newRouter(admin, store), "/api/users/u1/claims", `{"role":"super-admin","permissions":[]}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	_, exists := store.rows["u1"]
	assert.False(t, exists)

	rr = put(newRouter(admin, store), "/api/users/root/claims", `{"role":"user","permissions":[]}`)
	assert.Equal(t, http.StatusForbidden, rr.Code, "admin cannot demote a super-admin")
	assert.Equal(t, rbac.RoleSuperAdmin, store.rows["root"].Claims.Role)

	rr = put(newRouter(superAdmin, store), "/api/users/u1/claims", `{"role":"super-admin","permissions":[]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, rbac.RoleSuperAdmin, store.rows["u1"].Claims.Role)
}

func TestUpdateClaimsValidation(t *testing.T) {
	router := newRouter(superAdmin, newStore())
	cases := map[string]string{
		`{"role":"owner","permissions":[]}`:                "role",
		`{"permissions":["reports:generate"]}`:             "role",
		`{"role":"user","permissions":["reports:delete"]}`: "permissions",
		`{"role":"user","permissions":[""]}`:               "permissions",
		`{"role":"user","permissions":[],"admin":true}`:    "body",
		`not json`:                                         "body",
	}
	for body, field := range cases {
		rr := put(router, "/api/users/u1/claims", body)
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
		var eb httpx.ErrorBody
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &eb))
		assert.Contains(t, eb.Fields, field, body)
	}
}

func TestUpdateClaimsUnknownUser(t *testing.T) {
	rr := put(newRouter(superAdmin, newStore()), "/api/users/ghost/claims", `{"role":"user","permissions":[]}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListUsers(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(admin, newStore()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"email":"a@nia.gov.ph"`)
}
