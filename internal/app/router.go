package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	audithttp "github.com/nia-ro/workdesk/internal/audit/http"
	"github.com/nia-ro/workdesk/internal/auth"
	"github.com/nia-ro/workdesk/internal/guard"
	"github.com/nia-ro/workdesk/internal/observability"
	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/ratelimit"
	"github.com/nia-ro/workdesk/internal/rbac"
	"github.com/nia-ro/workdesk/internal/tools"
	"github.com/nia-ro/workdesk/internal/users"
	"github.com/nia-ro/workdesk/internal/view"
	"github.com/nia-ro/workdesk/jobs"
	"github.com/nia-ro/workdesk/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Templates  *view.Engine
	Finisher   *httpx.Finisher
	Guard      *guard.Guard
	RateLimits *ratelimit.Set
	Metrics    *observability.Metrics

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	ToolsHandler       *tools.Handler
	AuditHandler       *audithttp.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with workdesk defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:     params.Logger,
		Config:     params.Config,
		Finisher:   params.Finisher,
		RateLimits: params.RateLimits,
		Metrics:    params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		params.Finisher.Error(w, r, http.StatusNotFound, httpx.BodyNotFound)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		params.Finisher.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	pages := &pageHandler{logger: params.Logger, templates: params.Templates, finisher: params.Finisher}
	r.Get("/", pages.landing)
	r.Get("/unauthorized", pages.unauthorized)
	r.With(params.Guard.Page("page.workspace", rbac.PermWorkspaceRead)).Get("/workspace", pages.workspace)
	r.With(params.Guard.Page("page.dashboard", rbac.PermDashboardRead)).Get("/dashboard", pages.dashboard)
	r.With(params.Guard.Page("page.settings", rbac.PermSettingsRead)).Get("/settings", pages.settings)

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
		if params.ToolsHandler != nil {
			params.ToolsHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.PermissionsHandler != nil {
			params.PermissionsHandler.MountRoutes(r)
		}
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			params.Finisher.Error(w, r, http.StatusNotFound, httpx.BodyNotFound)
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler caches embedded assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
