package guard

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nia-ro/workdesk/internal/audit"
	"github.com/nia-ro/workdesk/internal/identity"
	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/rbac"
	"github.com/nia-ro/workdesk/internal/shared"
)

const (
	// LoginPath is where unauthenticated page requests are sent.
	LoginPath = "/?login=1"
	// UnauthorizedPath is where forbidden page requests are sent.
	UnauthorizedPath = "/unauthorized"
)

// Resolver resolves the session carried by a request.
type Resolver interface {
	ResolveRequest(r *http.Request) (identity.Principal, error)
}

// Auditor accepts audit records without blocking.
type Auditor interface {
	Enqueue(rec audit.Record)
}

// Observer receives decision outcomes. Implemented by observability.Metrics.
type Observer interface {
	GuardDecision(outcome string)
}

// Guard authorizes requests.
type Guard struct {
	resolver Resolver
	finisher *httpx.Finisher
	auditor  Auditor
	logger   *slog.Logger
	observer Observer
}

// New constructs a Guard. auditor may be nil, in which case nothing is audited.
func New(resolver Resolver, finisher *httpx.Finisher, auditor Auditor, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{resolver: resolver, finisher: finisher, auditor: auditor, logger: logger}
}

// WithObserver attaches decision reporting.
func (g *Guard) WithObserver(o Observer) *Guard {
	g.observer = o
	return g
}

// Authorize resolves the request's session and checks that every permission
// in perms is held. With no perms only authentication is required.
func (g *Guard) Authorize(r *http.Request, perms ...rbac.Permission) Decision {
	d := g.decide(r, perms)
	if g.observer != nil {
		g.observer.GuardDecision(d.Outcome.String())
	}
	return d
}

func (g *Guard) decide(r *http.Request, perms []rbac.Permission) Decision {
	principal, err := g.resolver.ResolveRequest(r)
	if err != nil {
		var failure *identity.Failure
		if errors.As(err, &failure) {
			return Decision{Outcome: Unauthenticated, Reason: failure.Reason}
		}
		g.logger.Error("resolve session", slog.String("path", r.URL.Path), slog.Any("error", err))
		return Decision{Outcome: Unavailable, Err: err}
	}
	if !rbac.HasAllPermissions(principal.Claims, perms) {
		return Decision{Outcome: Forbidden, Principal: principal}
	}
	return Decision{Outcome: Authorized, Principal: principal}
}

// RequireAuth is the page adapter for routes needing only a session. On false
// a redirect has been written.
func (g *Guard) RequireAuth(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	return g.page(w, r, g.Authorize(r))
}

// RequirePermission is the page adapter for routes needing perm. On false a
// redirect (or error page) has been written.
func (g *Guard) RequirePermission(w http.ResponseWriter, r *http.Request, perm rbac.Permission) (identity.Principal, bool) {
	return g.page(w, r, g.Authorize(r, perm))
}

func (g *Guard) page(w http.ResponseWriter, r *http.Request, d Decision) (identity.Principal, bool) {
	switch d.Outcome {
	case Authorized:
		return d.Principal, true
	case Unauthenticated:
		g.finisher.Redirect(w, r, LoginPath, http.StatusSeeOther)
	case Forbidden:
		g.finisher.Redirect(w, r, UnauthorizedPath, http.StatusSeeOther)
	default:
		g.finisher.Apply(w, r)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
	return identity.Principal{}, false
}

// WithAuth is the API adapter. On false the error response has been written
// with the security header set and the caller must return.
func (g *Guard) WithAuth(w http.ResponseWriter, r *http.Request, perms ...rbac.Permission) (identity.Principal, bool) {
	d := g.Authorize(r, perms...)
	g.respond(w, r, d)
	return d.Principal, d.Allowed()
}

func (g *Guard) respond(w http.ResponseWriter, r *http.Request, d Decision) {
	switch d.Outcome {
	case Authorized:
	case Unauthenticated:
		g.finisher.Error(w, r, http.StatusUnauthorized, httpx.Unauthorized(string(d.Reason)))
	case Forbidden:
		g.finisher.Error(w, r, http.StatusForbidden, httpx.BodyForbidden)
	default:
		g.finisher.Error(w, r, http.StatusInternalServerError, httpx.BodyInternal)
	}
}

// Page is middleware form of RequirePermission. With no perms it behaves as
// RequireAuth. The principal is stored in the request context and one audit
// record is enqueued under action, redirects included.
func (g *Guard) Page(action string, perms ...rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, notes := shared.ContextWithAnnotations(r.Context())
			r = r.WithContext(ctx)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			d := g.Authorize(r, perms...)
			principal, ok := g.page(ww, r, d)
			if !ok {
				g.auditPage(r, d, action, statusOf(ww), notes)
				return
			}
			next.ServeHTTP(ww, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
			g.audit(r, d.ActorID(), action, statusOf(ww), notes)
		})
	}
}

// auditPage records a page rejection. The response is a redirect, so the
// outcome class comes from the decision rather than the status code.
func (g *Guard) auditPage(r *http.Request, d Decision, action string, status int, notes *shared.Annotations) {
	switch d.Outcome {
	case Unauthenticated:
		shared.Annotate(r.Context(), "reason", string(d.Reason))
		shared.Annotate(r.Context(), "redirect", LoginPath)
		g.auditAs(r, d.ActorID(), action, status, audit.StatusRejected, notes)
	case Forbidden:
		shared.Annotate(r.Context(), "redirect", UnauthorizedPath)
		g.auditAs(r, d.ActorID(), action, status, audit.StatusRejected, notes)
	default:
		if d.Err != nil {
			shared.AnnotateError(r.Context(), d.Err)
		}
		g.auditAs(r, d.ActorID(), action, status, audit.StatusError, notes)
	}
}

// API wraps an API handler: it authorizes the request, stores the principal in
// the context, runs the handler and enqueues exactly one audit record for the
// outcome, rejections included.
func (g *Guard) API(action string, perms ...rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, notes := shared.ContextWithAnnotations(r.Context())
			r = r.WithContext(ctx)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			d := g.Authorize(r, perms...)
			if !d.Allowed() {
				g.respond(ww, r, d)
				g.audit(r, d.ActorID(), action, statusOf(ww), notes)
				return
			}

			r = r.WithContext(shared.ContextWithPrincipal(r.Context(), d.Principal))
			defer func() {
				if rec := recover(); rec != nil {
					shared.AnnotateError(r.Context(), fmt.Errorf("panic: %v", rec))
					g.audit(r, d.ActorID(), action, http.StatusInternalServerError, notes)
					panic(rec)
				}
			}()
			next.ServeHTTP(ww, r)
			g.audit(r, d.ActorID(), action, statusOf(ww), notes)
		})
	}
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if status := ww.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}

func (g *Guard) audit(r *http.Request, actorID, action string, status int, notes *shared.Annotations) {
	g.auditAs(r, actorID, action, status, "", notes)
}

// auditAs enqueues a record; a non-empty outcome overrides the class derived
// from the HTTP status.
func (g *Guard) auditAs(r *http.Request, actorID, action string, status int, outcome audit.Status, notes *shared.Annotations) {
	if g.auditor == nil {
		return
	}
	rec := audit.NewRecord(r, actorID, action, status)
	if outcome != "" {
		rec.Status = outcome
	}
	details, errText := notes.Snapshot()
	if len(details) > 0 {
		rec = rec.WithDetails(details)
	}
	if errText != "" {
		rec = rec.WithError(errText)
	}
	g.auditor.Enqueue(rec)
}
