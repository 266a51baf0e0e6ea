package shared

import (
	"context"

	"github.com/nia-ro/workdesk/internal/identity"
)

type principalContextKey struct{}

// ContextWithPrincipal stores the authorized principal in context.
func ContextWithPrincipal(ctx context.Context, p identity.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal placed by the authorization guard.
func PrincipalFromContext(ctx context.Context) (identity.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(identity.Principal)
	return p, ok
}
