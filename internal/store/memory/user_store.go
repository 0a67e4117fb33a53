package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/invoicer/internal/models"
	"github.com/wolfeidau/invoicer/internal/store"
)

var _ store.UserStore = (*UserStore)(nil)

// UserStore implements store.UserStore using in-memory storage.
// This implementation is for development and testing - data is lost on restart.
type UserStore struct {
	mu sync.RWMutex

	nextID       int64
	users        map[int64]*models.User  // id -> User
	usersByName  map[string]*models.User // username -> User
	usersByEmail map[string]*models.User // email -> User
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		nextID:       1,
		users:        make(map[int64]*models.User),
		usersByName:  make(map[string]*models.User),
		usersByEmail: make(map[string]*models.User),
	}
}

// Create stores a new user, assigning its ID and creation time.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByName[user.Username]; exists {
		return store.ErrUsernameTaken
	}
	if _, exists := s.usersByEmail[user.Email]; exists {
		return store.ErrEmailTaken
	}

	user.ID = s.nextID
	s.nextID++
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	// Clone to avoid external modifications
	clone := *user
	s.users[clone.ID] = &clone
	s.usersByName[clone.Username] = &clone
	s.usersByEmail[clone.Email] = &clone

	return nil
}

// GetByID retrieves a user by ID.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// GetByUsername retrieves a user by exact username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByName[username]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// Close is a no-op for the in-memory store.
func (s *UserStore) Close() error {
	return nil
}
