package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/rbac"
	"github.com/nia-ro/workdesk/internal/shared"
)

const maxClaimsBody = 16 << 10

// RouteGuard wraps handlers with authorization and auditing.
type RouteGuard interface {
	API(action string, perms ...rbac.Permission) func(http.Handler) http.Handler
}

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     RouteGuard
	finisher  *httpx.Finisher
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard RouteGuard, finisher *httpx.Finisher) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, finisher: finisher, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.API("users.list", rbac.PermUsersRead)).Get("/", h.listUsers)
	r.With(h.guard.API("users.claims.read", rbac.PermUsersRead)).Get("/{uid}/claims", h.getClaims)
	r.With(h.guard.API("users.claims.update", rbac.PermUsersWrite)).Put("/{uid}/claims", h.putClaims)
}

type claimsRequest struct {
	Role        string   `json:"role" validate:"required,oneof=super-admin admin user"`
	Permissions []string `json:"permissions" validate:"max=32,dive,required,max=64"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.serverError(w, r, "list users", err)
		return
	}
	if users == nil {
		users = []User{}
	}
	h.finisher.JSON(w, r, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) getClaims(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(chi.URLParam(r, "uid"))
	view, err := h.service.Claims(r.Context(), uid)
	if err != nil {
		h.serverError(w, r, "load claims", err)
		return
	}
	h.finisher.JSON(w, r, http.StatusOK, view)
}

func (h *Handler) putClaims(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(chi.URLParam(r, "uid"))
	var req claimsRequest
	if err := httpx.DecodeJSON(w, r, &req, maxClaimsBody); err != nil {
		h.finisher.Error(w, r, http.StatusBadRequest, httpx.Validation(map[string]string{"body": "invalid json"}))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				name, _, _ := strings.Cut(strings.ToLower(fe.StructField()), "[")
				fields[name] = fe.Tag()
			}
		}
		h.finisher.Error(w, r, http.StatusBadRequest, httpx.Validation(fields))
		return
	}

	actor, _ := shared.PrincipalFromContext(r.Context())
	view, err := h.service.UpdateClaims(r.Context(), actor, uid, rbac.Role(req.Role), req.Permissions)
	switch {
	case err == nil:
		shared.Annotate(r.Context(), "target_uid", uid)
		shared.Annotate(r.Context(), "role", string(view.Role))
		h.finisher.JSON(w, r, http.StatusOK, view)
	case errors.Is(err, ErrUnknownPermission):
		h.finisher.Error(w, r, http.StatusBadRequest, httpx.Validation(map[string]string{"permissions": "unknown"}))
	case errors.Is(err, ErrRoleEscalation):
		shared.Annotate(r.Context(), "target_uid", uid)
		h.finisher.Error(w, r, http.StatusForbidden, httpx.BodyForbidden)
	case errors.Is(err, rbac.ErrNotFound):
		h.finisher.Error(w, r, http.StatusNotFound, httpx.BodyNotFound)
	default:
		h.serverError(w, r, "update claims", err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	shared.AnnotateError(r.Context(), err)
	h.finisher.Error(w, r, http.StatusInternalServerError, httpx.BodyInternal)
}
