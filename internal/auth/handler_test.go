package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nia-ro/workdesk/internal/audit"
	"github.com/nia-ro/workdesk/internal/auth"
	"github.com/nia-ro/workdesk/internal/guard"
	"github.com/nia-ro/workdesk/internal/identity"
	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/shared"
	_ "github.com/nia-ro/workdesk/testing"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubRepo struct {
	user    *auth.User
	touched int
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id string) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) TouchLogin(ctx context.Context, id string, at time.Time) error {
	s.touched++
	return nil
}

type stubClaims struct {
	claims map[string]any
}

func (s stubClaims) CustomClaims(ctx context.Context, uid string) (map[string]any, error) {
	return s.claims, nil
}

type memoryAuditor struct {
	mu      sync.Mutex
	records []audit.Record
}

func (a *memoryAuditor) Enqueue(rec audit.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
}

type fixture struct {
	router  http.Handler
	repo    *stubRepo
	auditor *memoryAuditor
	cookie  string
}

func newFixture(t *testing.T, active bool) *fixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &stubRepo{user: &auth.User{ID: "3f1c", Email: "engineer@nia.gov.ph", PasswordHash: string(hash), IsActive: active, EmailVerified: true}}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	local, err := identity.NewLocal(identity.LocalConfig{
		Secret:      testSecret,
		TTL:         time.Hour,
		Claims:      stubClaims{claims: map[string]any{"role": "user", "permissions": []any{"reports:generate"}}},
		Revocations: identity.NewRevocationStore(client, time.Hour),
	})
	require.NoError(t, err)

	cookies := shared.NewSessionCookies("__session", false)
	finisher := httpx.NewFinisher(false, nil)
	auditor := &memoryAuditor{}
	resolver := identity.NewResolver(local, cookies.Name(), nil)
	g := guard.New(resolver, finisher, auditor, nil)
	h := auth.NewHandler(nil, auth.NewService(repo), local, cookies, g, auditor, finisher)

	r := chi.NewRouter()
	r.Route("/api/auth", h.MountRoutes)
	return &fixture{router: r, repo: repo, auditor: auditor, cookie: cookies.Name()}
}

func (f *fixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: f.cookie, Value: token})
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func sessionCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginIssuesSessionCookie(t *testing.T) {
	f := newFixture(t, true)
	rr := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"Engineer@nia.gov.ph","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	c := sessionCookie(rr, "__session")
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.NotEmpty(t, c.Value)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "3f1c", body["uid"])
	assert.Equal(t, "user", body["role"])
	assert.ElementsMatch(t, []any{"reports:generate", "workspace:read", "dashboard:read"}, body["permissions"])
	assert.Equal(t, 1, f.repo.touched)

	require.Len(t, f.auditor.records, 1)
	assert.Equal(t, "auth.login", f.auditor.records[0].Action)
	assert.Equal(t, "3f1c", f.auditor.records[0].ActorID)
	assert.Equal(t, audit.StatusSuccess, f.auditor.records[0].Status)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	f := newFixture(t, true)
	rr := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"engineer@nia.gov.ph","password":"wrong-password"}`, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":"Unauthorized","code":"invalid-credentials"}`, rr.Body.String())
	assert.Nil(t, sessionCookie(rr, "__session"))
	require.Len(t, f.auditor.records, 1)
	assert.Equal(t, audit.StatusRejected, f.auditor.records[0].Status)
	assert.Empty(t, f.auditor.records[0].ActorID)
}

func TestLoginRejectsInactiveAndUnknownUsers(t *testing.T) {
	f := newFixture(t, false)
	rr := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"engineer@nia.gov.ph","password":"correct-horse"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/auth/login", `{"email":"nobody@nia.gov.ph","password":"correct-horse"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t, true)
	rr := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"not-an-email","password":"short"}`, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "email", body.Fields["email"])
	assert.Equal(t, "min", body.Fields["password"])

	rr = f.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.co","password":"12345678","extra":1}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSessionRefreshAndLogout(t *testing.T) {
	f := newFixture(t, true)
	rr := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"engineer@nia.gov.ph","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	token := sessionCookie(rr, "__session").Value

	rr = f.do(t, http.MethodGet, "/api/auth/session", "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"uid":"3f1c"`)

	rr = f.do(t, http.MethodPost, "/api/auth/refresh", "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotNil(t, sessionCookie(rr, "__session"))

	rr = f.do(t, http.MethodPost, "/api/auth/logout", "", token)
	require.Equal(t, http.StatusNoContent, rr.Code)
	cleared := sessionCookie(rr, "__session")
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	rr = f.do(t, http.MethodGet, "/api/auth/session", "", token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid-token")
}

func TestSessionWithoutCookie(t *testing.T) {
	f := newFixture(t, true)
	rr := f.do(t, http.MethodGet, "/api/auth/session", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":"Unauthorized","code":"no-token"}`, rr.Body.String())
}
