package auth

import "time"

// User represents a staff account able to sign in.
type User struct {
	ID            string
	Email         string
	DisplayName   string
	PasswordHash  string
	IsActive      bool
	EmailVerified bool
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
