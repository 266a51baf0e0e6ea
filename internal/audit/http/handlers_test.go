package audithttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nia-ro/workdesk/internal/audit"
	"github.com/nia-ro/workdesk/internal/identity"
	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/rbac"
	"github.com/nia-ro/workdesk/internal/shared"
)

type stubLister struct {
	pages       []audit.Page
	err         error
	lastFilters audit.Filters
	calls       int
}

func (s *stubLister) Recent(ctx context.Context, filters audit.Filters) (audit.Page, error) {
	s.lastFilters = filters
	s.calls++
	if s.err != nil {
		return audit.Page{}, s.err
	}
	if len(s.pages) == 0 {
		return audit.Page{Page: filters.Page, PageSize: filters.PageSize}, nil
	}
	idx := min(filters.Page-1, len(s.pages)-1)
	return s.pages[idx], nil
}

type passGuard struct{ uid string }

func (g passGuard) API(action string, perms ...rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.ContextWithPrincipal(r.Context(), identity.Principal{UID: g.uid})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRouter(t *testing.T, lister Lister) http.Handler {
	t.Helper()
	h := NewHandler(nil, lister, passGuard{uid: "admin-1"}, httpx.NewFinisher(false, nil))
	h.now = func() time.Time { return time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)
	return r
}

func TestListReturnsPage(t *testing.T) {
	lister := &stubLister{pages: []audit.Page{{
		Records: []audit.Record{{ID: "r1", ActorID: "u1", Action: "reports.generate", Status: audit.StatusSuccess, HTTPStatus: 200}},
		Page:    1, PageSize: 50,
	}}}
	rr := httptest.NewRecorder()
	newRouter(t, lister).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/audit?status=success&actor=u1", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	var page audit.Page
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Records, 1)
	assert.Equal(t, "r1", page.Records[0].ID)
	assert.Equal(t, audit.StatusSuccess, lister.lastFilters.Status)
	assert.Equal(t, "u1", lister.lastFilters.ActorID)
	assert.Equal(t, 1, lister.lastFilters.Page)
}

func TestListRejectsBadFilters(t *testing.T) {
	for _, query := range []string{"status=maybe", "page=0", "from=yesterday", "from=2025-03-10&to=2025-01-01"} {
		rr := httptest.NewRecorder()
		newRouter(t, &stubLister{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/audit?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestListHidesStoreErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(t, &stubLister{err: errors.New("pq: relation does not exist")}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "relation")
}

func TestExportWritesCSVAttachment(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	lister := &stubLister{pages: []audit.Page{
		{Records: []audit.Record{{ActorID: "u1", Action: "billing.consolidate", Status: audit.StatusSuccess, Method: "POST", Route: "/api/billing/consolidate", HTTPStatus: 200, At: at}}, HasNext: true},
		{Records: []audit.Record{{Action: "auth.refresh", Status: audit.StatusRejected, Method: "POST", Route: "/api/auth/refresh", HTTPStatus: 401, At: at}}},
	}}
	rr := httptest.NewRecorder()
	newRouter(t, lister).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/audit/export.csv", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename="audit-20250315.csv"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "at,actor_id,action,status,method,route,http_status,error", lines[0])
	assert.Equal(t, "2025-03-14T09:30:00Z,u1,billing.consolidate,success,POST,/api/billing/consolidate,200,", lines[1])
	assert.Equal(t, 2, lister.calls)
}

func TestExportThrottledPerPrincipal(t *testing.T) {
	router := newRouter(t, &stubLister{})
	for i := 0; i < exportLimit; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/audit/export.csv", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/audit/export.csv", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}
