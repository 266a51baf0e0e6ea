package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/nia-ro/workdesk/internal/rbac"
)

const claimsFetchTimeout = 5 * time.Second

// Reason classifies why a session could not be resolved.
type Reason string

const (
	ReasonNoToken      Reason = "no-token"
	ReasonInvalidToken Reason = "invalid-token"
	ReasonExpired      Reason = "expired"
)

// Failure is the typed authentication failure returned by Resolve.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return "identity: " + string(f.Reason)
	}
	return fmt.Sprintf("identity: %s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Principal is the authenticated identity of one request.
type Principal struct {
	UID           string
	Email         string
	EmailVerified bool
	Claims        rbac.Claims
	ExpiresAt     time.Time
}

// Can reports whether the principal holds perm.
func (p Principal) Can(perm rbac.Permission) bool {
	return rbac.HasPermission(p.Claims, perm)
}

// Resolver turns a session credential into a Principal.
type Resolver struct {
	provider   Provider
	cookieName string
	logger     *slog.Logger
	inflight   singleflight.Group
}

// NewResolver constructs a Resolver reading credentials from cookieName.
func NewResolver(provider Provider, cookieName string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{provider: provider, cookieName: cookieName, logger: logger}
}

// CookieName returns the cookie carrying the session credential.
func (r *Resolver) CookieName() string {
	return r.cookieName
}

// TokenFromRequest extracts the raw credential, or "" when absent.
func (r *Resolver) TokenFromRequest(req *http.Request) string {
	cookie, err := req.Cookie(r.cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

// ResolveRequest resolves the credential carried by req.
func (r *Resolver) ResolveRequest(req *http.Request) (Principal, error) {
	return r.Resolve(req.Context(), r.TokenFromRequest(req))
}

// Resolve verifies token and loads the subject's current claims. Errors are
// either a *Failure or wrap ErrUnavailable.
func (r *Resolver) Resolve(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, &Failure{Reason: ReasonNoToken}
	}
	verified, err := r.provider.VerifySessionToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return Principal{}, err
		}
		return Principal{}, &Failure{Reason: Classify(err), Err: err}
	}

	// Claims embedded in the credential may be stale; always ask the provider.
	// The shared fetch is detached from any single caller so one disconnect
	// cannot fail the other requests waiting on it.
	ch := r.inflight.DoChan(verified.UID, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), claimsFetchTimeout)
		defer cancel()
		return r.provider.CustomClaims(fetchCtx, verified.UID)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Principal{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
	v, err := res.Val, res.Err
	if err != nil {
		r.logger.Error("load custom claims", slog.String("uid", verified.UID), slog.Any("error", err))
		if errors.Is(err, ErrUnavailable) {
			return Principal{}, err
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	raw, _ := v.(map[string]any)

	return Principal{
		UID:           verified.UID,
		Email:         verified.Email,
		EmailVerified: verified.EmailVerified,
		Claims:        rbac.ParseClaims(raw),
		ExpiresAt:     verified.ExpiresAt,
	}, nil
}

// Classify maps a verification error to a failure reason.
func Classify(err error) Reason {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrTokenExpired) || errors.Is(err, jwt.ErrTokenExpired) {
		return ReasonExpired
	}
	if strings.Contains(strings.ToLower(err.Error()), "expired") {
		return ReasonExpired
	}
	return ReasonInvalidToken
}
