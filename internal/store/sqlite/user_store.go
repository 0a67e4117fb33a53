// Package sqlite provides a single-file user store for local and small
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/invoicer/internal/models"
	"github.com/wolfeidau/invoicer/internal/store"
)

var _ store.UserStore = (*UserStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      VARCHAR(80)  NOT NULL UNIQUE,
	email         VARCHAR(120) NOT NULL UNIQUE,
	password_hash TEXT         NOT NULL,
	company_name  VARCHAR(200) NOT NULL DEFAULT '',
	created_at    TIMESTAMP    NOT NULL
)`

const selectUser = `SELECT id, username, email, password_hash, company_name, created_at FROM users`

// UserStore implements store.UserStore on a database/sql handle.
type UserStore struct {
	db *sql.DB
}

// NewUserStore opens (creating if needed) the database file at path.
func NewUserStore(path string) (*UserStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// sqlite serialises writers, and each :memory: connection is its own database
	db.SetMaxOpenConns(1)

	s, err := NewUserStoreFromDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("Opened sqlite user store")

	return s, nil
}

// NewUserStoreFromDB wraps an existing handle and ensures the schema exists.
func NewUserStoreFromDB(db *sql.DB) (*UserStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create users table: %w", err)
	}
	return &UserStore{db: db}, nil
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	createdAt := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, company_name, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.CompanyName,
		createdAt,
	)
	if err != nil {
		return mapSQLiteError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}

	user.ID = id
	user.CreatedAt = createdAt

	log.Debug().Int64("user_id", user.ID).Str("username", user.Username).Msg("Created user")

	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE username = ?`, username))
}

func (s *UserStore) Close() error {
	return s.db.Close()
}

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.CompanyName,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

// mapSQLiteError converts unique constraint failures into store errors.
// sqlite names the failing column as "users.<column>" in the message.
func mapSQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	unique := errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique

	msg := err.Error()
	if !unique && !strings.Contains(msg, "UNIQUE constraint failed") {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	switch {
	case strings.Contains(msg, "users.username"):
		return store.ErrUsernameTaken
	case strings.Contains(msg, "users.email"):
		return store.ErrEmailTaken
	default:
		return fmt.Errorf("unique constraint violation: %w", err)
	}
}
