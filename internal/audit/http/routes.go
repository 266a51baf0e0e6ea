package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/rbac"
	"github.com/nia-ro/workdesk/internal/shared"
)

const exportLimit = 10
const exportWindow = time.Minute

// MountRoutes registers the audit listing and CSV export endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportLimit, exportWindow,
		httprate.WithKeyFuncs(exportKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			h.finisher.Error(w, r, http.StatusTooManyRequests, httpx.ErrorBody{Error: "Too many requests"})
		}),
	)
	r.With(h.guard.API("audit.list", rbac.PermAuditRead)).Get("/audit", h.handleList)
	r.With(h.guard.API("audit.export", rbac.PermAuditRead), limiter).Get("/audit/export.csv", h.handleExport)
}

func exportKey(r *http.Request) (string, error) {
	if p, ok := shared.PrincipalFromContext(r.Context()); ok && p.UID != "" {
		return "user:" + p.UID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
