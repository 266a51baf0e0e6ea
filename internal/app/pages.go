package app

import (
	"log/slog"
	"net/http"

	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/rbac"
	"github.com/nia-ro/workdesk/internal/shared"
	"github.com/nia-ro/workdesk/internal/tools"
	"github.com/nia-ro/workdesk/internal/view"
)

type pageHandler struct {
	logger    *slog.Logger
	templates *view.Engine
	finisher  *httpx.Finisher
}

func (p *pageHandler) render(w http.ResponseWriter, r *http.Request, status int, name string, data view.TemplateData) {
	data.CurrentPath = r.URL.Path
	if principal, ok := shared.PrincipalFromContext(r.Context()); ok {
		data.Principal = &principal
	}
	p.finisher.Apply(w, r)
	if err := p.templates.RenderStatus(w, status, name, data); err != nil {
		p.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (p *pageHandler) landing(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "pages/landing.html", view.TemplateData{
		Title: "Sign in",
		Data:  map[string]any{"LoginHint": r.URL.Query().Get("login") == "1"},
	})
}

func (p *pageHandler) unauthorized(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusForbidden, "pages/unauthorized.html", view.TemplateData{Title: "Access denied"})
}

func (p *pageHandler) workspace(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	p.render(w, r, http.StatusOK, "pages/workspace.html", view.TemplateData{
		Title: "Workspace",
		Data:  map[string]any{"Tools": tools.Available(principal)},
	})
}

func (p *pageHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "pages/dashboard.html", view.TemplateData{Title: "Dashboard"})
}

func (p *pageHandler) settings(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "pages/settings.html", view.TemplateData{
		Title: "Settings",
		Data:  map[string]any{"Permissions": rbac.Catalog()},
	})
}
