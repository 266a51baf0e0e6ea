// Package identity verifies session credentials and resolves them into
// principals carrying fresh, typed claims.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTokenExpired marks a credential past its expiry.
	ErrTokenExpired = errors.New("identity: token expired")
	// ErrTokenInvalid marks a credential that failed verification.
	ErrTokenInvalid = errors.New("identity: token invalid")
	// ErrTokenRevoked marks a credential issued before the subject's last revocation.
	ErrTokenRevoked = errors.New("identity: token revoked")
	// ErrUnavailable marks an infrastructure failure talking to the provider.
	ErrUnavailable = errors.New("identity: provider unavailable")
)

// Token is the verified content of a session credential.
type Token struct {
	UID           string
	Email         string
	EmailVerified bool
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Subject identifies whom a credential is issued to.
type Subject struct {
	UID           string
	Email         string
	EmailVerified bool
}

// Provider is the identity provider contract.
type Provider interface {
	// VerifySessionToken checks authenticity and non-revocation of token.
	VerifySessionToken(ctx context.Context, token string) (Token, error)
	// CustomClaims returns the subject's current custom claims document.
	CustomClaims(ctx context.Context, uid string) (map[string]any, error)
	// IssueToken mints a session credential for sub carrying a claims snapshot.
	IssueToken(ctx context.Context, sub Subject, claims map[string]any) (string, time.Time, error)
}
