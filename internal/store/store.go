package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/invoicer/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
	ErrEmailTaken    = errors.New("email already exists")
)

// UserStore defines the interface for user account storage.
type UserStore interface {
	// Create inserts the user and assigns ID and CreatedAt.
	// Returns ErrUsernameTaken or ErrEmailTaken on a uniqueness conflict,
	// checking the username first.
	Create(ctx context.Context, user *models.User) error

	// GetByID returns ErrUserNotFound if no user has the given ID.
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// GetByUsername performs an exact, case-sensitive match.
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	Close() error
}
