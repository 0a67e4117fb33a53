// Package session keeps the signed in user's token and profile, both in
// memory and in durable storage.
package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/invoicer/internal/models"
	"github.com/wolfeidau/invoicer/internal/storage"
)

// TokenStore reads and writes the session entries in durable storage.
type TokenStore struct {
	store storage.Storage
}

func NewTokenStore(store storage.Storage) *TokenStore {
	return &TokenStore{store: store}
}

// Token returns the stored token, or "" when none is stored.
func (t *TokenStore) Token() (string, error) {
	token, _, err := t.store.Get(storage.TokenKey)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return token, nil
}

// User returns the stored profile, or nil when none is stored. An entry that
// does not decode to a profile is removed and reported as absent.
func (t *TokenStore) User() (*models.UserProfile, error) {
	raw, ok, err := t.store.Get(storage.UserKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var user *models.UserProfile
	if err := json.Unmarshal([]byte(raw), &user); err != nil || user == nil {
		log.Warn().Err(err).Msg("discarding corrupt stored user profile")
		if err := t.store.Remove(storage.UserKey); err != nil {
			return nil, fmt.Errorf("failed to remove corrupt user: %w", err)
		}
		return nil, nil
	}

	return user, nil
}

// Save stores the token and profile together. If the token cannot be written
// the previous profile is put back, leaving storage as it was.
func (t *TokenStore) Save(token string, user models.UserProfile) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	prev, err := t.snapshot(storage.UserKey)
	if err != nil {
		return err
	}

	if err := t.store.Set(storage.UserKey, string(data)); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	if err := t.store.Set(storage.TokenKey, token); err != nil {
		return errors.Join(
			fmt.Errorf("failed to save token: %w", err),
			t.restore(storage.UserKey, prev),
		)
	}

	return nil
}

// SaveToken stores a token with no profile, dropping any older profile. The
// old profile comes back if the token cannot be written.
func (t *TokenStore) SaveToken(token string) error {
	prev, err := t.snapshot(storage.UserKey)
	if err != nil {
		return err
	}

	if err := t.store.Remove(storage.UserKey); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}

	if err := t.store.Set(storage.TokenKey, token); err != nil {
		return errors.Join(
			fmt.Errorf("failed to save token: %w", err),
			t.restore(storage.UserKey, prev),
		)
	}

	return nil
}

// entry is a raw storage value and whether it was present.
type entry struct {
	value string
	ok    bool
}

func (t *TokenStore) snapshot(key string) (entry, error) {
	value, ok, err := t.store.Get(key)
	if err != nil {
		return entry{}, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return entry{value: value, ok: ok}, nil
}

func (t *TokenStore) restore(key string, e entry) error {
	if !e.ok {
		return t.store.Remove(key)
	}
	if err := t.store.Set(key, e.value); err != nil {
		return fmt.Errorf("failed to restore %s: %w", key, err)
	}
	return nil
}

// Clear removes both entries. Both removals are attempted even if one fails.
func (t *TokenStore) Clear() error {
	return errors.Join(
		t.store.Remove(storage.TokenKey),
		t.store.Remove(storage.UserKey),
	)
}
