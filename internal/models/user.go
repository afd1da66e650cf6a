package models

import (
	"errors"
	"strings"
	"time"
)

// User is an identity record. A user owns its datasources and OAuth
// tokens; users are unique by email and by Google OAuth ID.
type User struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	FullName      string     `json:"full_name,omitempty"`
	GoogleOAuthID string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
}

// Validate checks required user fields.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("user email is required")
	}
	if !strings.Contains(u.Email, "@") {
		return errors.New("user email is malformed")
	}
	return nil
}
