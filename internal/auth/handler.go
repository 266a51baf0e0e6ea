package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nia-ro/workdesk/internal/audit"
	"github.com/nia-ro/workdesk/internal/identity"
	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/rbac"
	"github.com/nia-ro/workdesk/internal/shared"
)

const maxLoginBody = 4 << 10

// Issuer mints and revokes session credentials.
type Issuer interface {
	IssueToken(ctx context.Context, sub identity.Subject, claims map[string]any) (string, time.Time, error)
	CustomClaims(ctx context.Context, uid string) (map[string]any, error)
	Revoke(ctx context.Context, uid string) error
}

// RouteGuard wraps handlers with authorization and auditing.
type RouteGuard interface {
	API(action string, perms ...rbac.Permission) func(http.Handler) http.Handler
}

// Auditor accepts audit records for the unauthenticated login route.
type Auditor interface {
	Enqueue(rec audit.Record)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	issuer    Issuer
	cookies   *shared.SessionCookies
	guard     RouteGuard
	auditor   Auditor
	finisher  *httpx.Finisher
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, issuer Issuer, cookies *shared.SessionCookies, guard RouteGuard, auditor Auditor, finisher *httpx.Finisher) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		issuer:    issuer,
		cookies:   cookies,
		guard:     guard,
		auditor:   auditor,
		finisher:  finisher,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.With(h.guard.API("auth.logout")).Post("/logout", h.handleLogout)
	r.With(h.guard.API("auth.refresh")).Post("/refresh", h.handleRefresh)
	r.With(h.guard.API("auth.session")).Get("/session", h.handleSession)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type sessionResponse struct {
	UID           string            `json:"uid"`
	Email         string            `json:"email,omitempty"`
	EmailVerified bool              `json:"email_verified"`
	Role          rbac.Role         `json:"role"`
	Permissions   []rbac.Permission `json:"permissions"`
	ExpiresAt     time.Time         `json:"expires_at"`
}

func newSessionResponse(uid, email string, verified bool, claims rbac.Claims, expires time.Time) sessionResponse {
	return sessionResponse{
		UID:           uid,
		Email:         email,
		EmailVerified: verified,
		Role:          claims.Role,
		Permissions:   rbac.Granted(claims),
		ExpiresAt:     expires.UTC(),
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	status, actor := http.StatusOK, ""
	defer func() {
		if h.auditor != nil {
			h.auditor.Enqueue(audit.NewRecord(r, actor, "auth.login", status))
		}
	}()

	var req loginRequest
	if err := httpx.DecodeJSON(w, r, &req, maxLoginBody); err != nil {
		status = http.StatusBadRequest
		h.finisher.Error(w, r, status, httpx.Validation(map[string]string{"body": "invalid json"}))
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if fields := h.validate(req); fields != nil {
		status = http.StatusBadRequest
		h.finisher.Error(w, r, status, httpx.Validation(fields))
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
			h.finisher.Error(w, r, status, httpx.Unauthorized("invalid-credentials"))
			return
		}
		status = http.StatusInternalServerError
		h.serverError(w, r, "authenticate", err)
		return
	}
	actor = user.ID

	raw, err := h.issuer.CustomClaims(r.Context(), user.ID)
	if err != nil {
		status = http.StatusInternalServerError
		h.serverError(w, r, "load claims", err)
		return
	}
	claims := rbac.ParseClaims(raw)
	token, expires, err := h.issuer.IssueToken(r.Context(), Subject(user), claims.Raw())
	if err != nil {
		status = http.StatusInternalServerError
		h.serverError(w, r, "issue token", err)
		return
	}
	if err := h.service.RecordLogin(r.Context(), user); err != nil {
		h.logger.Warn("record login", slog.String("uid", user.ID), slog.Any("error", err))
	}
	h.cookies.Commit(w, token, expires)
	h.finisher.JSON(w, r, status, newSessionResponse(user.ID, user.Email, user.EmailVerified, claims, expires))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.issuer.Revoke(r.Context(), principal.UID); err != nil {
		h.serverError(w, r, "revoke session", err)
		return
	}
	h.cookies.Destroy(w)
	h.finisher.Apply(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	sub := identity.Subject{UID: principal.UID, Email: principal.Email, EmailVerified: principal.EmailVerified}
	token, expires, err := h.issuer.IssueToken(r.Context(), sub, principal.Claims.Raw())
	if err != nil {
		h.serverError(w, r, "issue token", err)
		return
	}
	h.cookies.Commit(w, token, expires)
	h.finisher.JSON(w, r, http.StatusOK, newSessionResponse(principal.UID, principal.Email, principal.EmailVerified, principal.Claims, expires))
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	h.finisher.JSON(w, r, http.StatusOK, newSessionResponse(principal.UID, principal.Email, principal.EmailVerified, principal.Claims, principal.ExpiresAt))
}

func (h *Handler) validate(req loginRequest) map[string]string {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": "invalid"}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return fields
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	shared.AnnotateError(r.Context(), err)
	h.finisher.Error(w, r, http.StatusInternalServerError, httpx.BodyInternal)
}
