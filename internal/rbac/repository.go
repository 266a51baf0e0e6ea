package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nia-ro/workdesk/internal/platform/db"
)

// ErrNotFound indicates that no claims are stored for the subject.
var ErrNotFound = errors.New("rbac: not found")

// Repository stores custom claims per subject in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Assignment loads the stored claims for uid.
func (r *Repository) Assignment(ctx context.Context, uid string) (Assignment, error) {
	const query = `SELECT uid, role, permissions, updated_at, COALESCE(updated_by, '') FROM user_claims WHERE uid = $1`
	var (
		a     Assignment
		role  string
		perms []string
	)
	err := r.pool.QueryRow(ctx, query, uid).Scan(&a.UID, &role, &perms, &a.UpdatedAt, &a.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, ErrNotFound
		}
		return Assignment{}, fmt.Errorf("rbac: load claims: %w", err)
	}
	raw := make([]any, 0, len(perms))
	for _, p := range perms {
		raw = append(raw, p)
	}
	a.Claims = ParseClaims(map[string]any{"role": role, "permissions": raw})
	return a, nil
}

// CustomClaims returns the untyped claims document for uid. Subjects without
// a stored row get an empty document, which the evaluator treats as no access.
func (r *Repository) CustomClaims(ctx context.Context, uid string) (map[string]any, error) {
	a, err := r.Assignment(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	return a.Claims.Raw(), nil
}

// SetClaims replaces the claims stored for uid.
func (r *Repository) SetClaims(ctx context.Context, uid string, claims Claims, updatedBy string) error {
	perms := make([]string, 0, len(claims.Permissions))
	for _, p := range claims.Permissions {
		if p.Valid() {
			perms = append(perms, string(p))
		}
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, uid).Scan(&exists); err != nil {
			return fmt.Errorf("rbac: check user: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		_, err := tx.Exec(ctx, `INSERT INTO user_claims (uid, role, permissions, updated_at, updated_by)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (uid) DO UPDATE SET role = EXCLUDED.role, permissions = EXCLUDED.permissions, updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by`,
			uid, string(claims.Role), perms, time.Now().UTC(), updatedBy)
		if err != nil {
			return fmt.Errorf("rbac: save claims: %w", err)
		}
		return nil
	})
}
