package users

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nia-ro/workdesk/internal/rbac"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all users with their stored role.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.email, u.display_name, u.is_active, c.role, u.created_at
FROM users u LEFT JOIN user_claims c ON c.uid = u.id
ORDER BY u.email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var (
			user User
			role pgtype.Text
		)
		if err := rows.Scan(&user.ID, &user.Email, &user.DisplayName, &user.IsActive, &role, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.Role = rbac.ParseClaims(map[string]any{"role": role.String}).Role
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
