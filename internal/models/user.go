package models

import (
	"time"
)

// User is an account that can sign in to the invoicing API.
// Usernames and emails are unique and compared case-sensitively.
type User struct {
	ID           int64
	Username     string // letters, digits, '-' and '_', at most 80 characters
	Email        string // at most 120 characters
	PasswordHash string // bcrypt hash, never serialized
	CompanyName  string // optional, at most 200 characters

	CreatedAt time.Time
}

// Profile returns the public view of the user sent to clients.
func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		CompanyName: u.CompanyName,
		CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// UserProfile is the user record exchanged over the wire and kept in client storage.
type UserProfile struct {
	ID          int64  `json:"id" yaml:"id"`
	Username    string `json:"username" yaml:"username"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty"`
	CompanyName string `json:"company_name,omitempty" yaml:"company_name,omitempty"`
	CreatedAt   string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}
