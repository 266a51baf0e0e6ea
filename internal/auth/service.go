package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nia-ro/workdesk/internal/identity"
	"github.com/nia-ro/workdesk/internal/shared"
)

// dummyHash keeps the cost of a failed lookup close to a failed comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("workdesk-placeholder"), bcrypt.DefaultCost)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RecordLogin stamps the user's last sign-in.
func (s *Service) RecordLogin(ctx context.Context, user *User) error {
	return s.repo.TouchLogin(ctx, user.ID, s.now())
}

// Subject converts user into the identity provider's subject.
func Subject(user *User) identity.Subject {
	return identity.Subject{UID: user.ID, Email: user.Email, EmailVerified: user.EmailVerified}
}
