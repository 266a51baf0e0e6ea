package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/nia-ro/workdesk/internal/identity"
	"github.com/nia-ro/workdesk/internal/rbac"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
}

// ClaimsStore reads and writes stored claims.
type ClaimsStore interface {
	Assignment(ctx context.Context, uid string) (rbac.Assignment, error)
	SetClaims(ctx context.Context, uid string, claims rbac.Claims, updatedBy string) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	claims ClaimsStore
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, claims ClaimsStore) *Service {
	return &Service{repo: repo, claims: claims}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// Claims returns the stored claims of uid. A subject without a stored row
// is reported with the default role and no permissions.
func (s *Service) Claims(ctx context.Context, uid string) (ClaimsView, error) {
	a, err := s.claims.Assignment(ctx, uid)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return toView(rbac.Assignment{UID: uid, Claims: rbac.Claims{Role: rbac.RoleUser}}), nil
		}
		return ClaimsView{}, fmt.Errorf("users: load claims: %w", err)
	}
	return toView(a), nil
}

// UpdateClaims replaces the claims of uid on behalf of actor.
func (s *Service) UpdateClaims(ctx context.Context, actor identity.Principal, uid string, role rbac.Role, rawPerms []string) (ClaimsView, error) {
	perms := make([]rbac.Permission, 0, len(rawPerms))
	seen := make(map[rbac.Permission]struct{}, len(rawPerms))
	for _, raw := range rawPerms {
		p, ok := rbac.Lookup(raw)
		if !ok {
			return ClaimsView{}, fmt.Errorf("%w: %q", ErrUnknownPermission, raw)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		perms = append(perms, p)
	}

	if actor.Claims.Role != rbac.RoleSuperAdmin {
		if role == rbac.RoleSuperAdmin {
			return ClaimsView{}, ErrRoleEscalation
		}
		current, err := s.claims.Assignment(ctx, uid)
		if err != nil && !errors.Is(err, rbac.ErrNotFound) {
			return ClaimsView{}, fmt.Errorf("users: load claims: %w", err)
		}
		if err == nil && current.Claims.Role == rbac.RoleSuperAdmin {
			return ClaimsView{}, ErrRoleEscalation
		}
	}

	claims := rbac.Claims{Role: role, Permissions: perms}
	if err := s.claims.SetClaims(ctx, uid, claims, actor.UID); err != nil {
		return ClaimsView{}, err
	}
	return s.Claims(ctx, uid)
}

func toView(a rbac.Assignment) ClaimsView {
	v := ClaimsView{
		UID:         a.UID,
		Role:        a.Claims.Role,
		Permissions: a.Claims.Permissions,
		Effective:   rbac.Granted(a.Claims),
		UpdatedBy:   a.UpdatedBy,
	}
	if v.Permissions == nil {
		v.Permissions = []rbac.Permission{}
	}
	if !a.UpdatedAt.IsZero() {
		t := a.UpdatedAt
		v.UpdatedAt = &t
	}
	return v
}
