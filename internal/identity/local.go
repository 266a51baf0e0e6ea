package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ClaimsSource yields the stored custom claims of a subject.
type ClaimsSource interface {
	CustomClaims(ctx context.Context, uid string) (map[string]any, error)
}

// LocalConfig configures the built-in provider.
type LocalConfig struct {
	Secret      string
	Issuer      string
	TTL         time.Duration
	Claims      ClaimsSource
	Revocations *RevocationStore
}

// Local is a Provider that signs session credentials as HS256 JWTs, checks
// revocation in Redis and reads claims from the claims store.
type Local struct {
	secret      []byte
	issuer      string
	ttl         time.Duration
	claims      ClaimsSource
	revocations *RevocationStore
	now         func() time.Time
}

type sessionClaims struct {
	Email         string         `json:"email,omitempty"`
	EmailVerified bool           `json:"email_verified"`
	Custom        map[string]any `json:"claims,omitempty"`
	IssuedAtMs    int64          `json:"iat_ms,omitempty"`
	jwt.RegisteredClaims
}

// NewLocal constructs the provider.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("identity: session secret must be at least 32 bytes")
	}
	if cfg.Claims == nil {
		return nil, errors.New("identity: claims source required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 120 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "workdesk"
	}
	return &Local{
		secret:      []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		ttl:         cfg.TTL,
		claims:      cfg.Claims,
		revocations: cfg.Revocations,
		now:         time.Now,
	}, nil
}

// TTL exposes the credential lifetime.
func (l *Local) TTL() time.Duration {
	return l.ttl
}

// VerifySessionToken implements Provider.
func (l *Local) VerifySessionToken(ctx context.Context, token string) (Token, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return l.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(l.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(l.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Token{}, ErrTokenExpired
		}
		return Token{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.Subject == "" || claims.IssuedAt == nil {
		return Token{}, ErrTokenInvalid
	}

	// iat has second precision; iat_ms lets a login in the same second as a
	// revocation survive it.
	issued := claims.IssuedAt.Time
	if claims.IssuedAtMs > 0 {
		issued = time.UnixMilli(claims.IssuedAtMs)
	}
	revokedAt, err := l.revocations.RevokedAt(ctx, claims.Subject)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !revokedAt.IsZero() && !issued.After(revokedAt) {
		return Token{}, ErrTokenRevoked
	}

	return Token{
		UID:           claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		IssuedAt:      issued,
		ExpiresAt:     claims.ExpiresAt.Time,
	}, nil
}

// CustomClaims implements Provider.
func (l *Local) CustomClaims(ctx context.Context, uid string) (map[string]any, error) {
	raw, err := l.claims.CustomClaims(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return raw, nil
}

// IssueToken implements Provider.
func (l *Local) IssueToken(ctx context.Context, sub Subject, claims map[string]any) (string, time.Time, error) {
	if sub.UID == "" {
		return "", time.Time{}, errors.New("identity: subject uid required")
	}
	now := l.now()
	expires := now.Add(l.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email:         sub.Email,
		EmailVerified: sub.EmailVerified,
		Custom:        claims,
		IssuedAtMs:    now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    l.issuer,
			Subject:   sub.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(l.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, expires, nil
}

// Revoke invalidates every credential issued to uid so far.
func (l *Local) Revoke(ctx context.Context, uid string) error {
	return l.revocations.Revoke(ctx, uid, l.now())
}

var _ Provider = (*Local)(nil)
