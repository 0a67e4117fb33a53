package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/invoicer/internal/storage"
)

// LoginPath is where the user is sent after the session is invalidated.
const LoginPath = "/login"

// Credential exchange endpoints answer 401 for bad credentials, which is a
// failed sign in rather than a rejected session.
var guardExemptPaths = []string{
	"/api/auth/login",
	"/api/auth/register",
}

// Invalidator resets the in-memory session once the Guard has cleared
// storage. Implementations must tolerate concurrent and repeated calls.
type Invalidator interface {
	Invalidate() error
}

// InvalidatorFunc adapts a function to the Invalidator interface.
type InvalidatorFunc func() error

func (f InvalidatorFunc) Invalidate() error { return f() }

// Navigator moves the user to another entry point of the application.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Authenticator attaches the stored token to outgoing requests.
type Authenticator struct {
	next  http.RoundTripper
	store storage.Storage
}

func NewAuthenticator(next http.RoundTripper, store storage.Storage) *Authenticator {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Authenticator{next: next, store: store}
}

// RoundTrip reads the token from storage on every call so changes made by
// another process are picked up.
func (a *Authenticator) RoundTrip(req *http.Request) (*http.Response, error) {
	token, ok, err := a.store.Get(storage.TokenKey)
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	if ok && token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return a.next.RoundTrip(req)
}

// Guard invalidates the session when the server rejects the token.
type Guard struct {
	next        http.RoundTripper
	store       storage.Storage
	invalidator Invalidator
	navigator   Navigator
}

// NewGuard wraps next. inv and nav are optional, the stored session is
// cleared on a rejected token either way.
func NewGuard(next http.RoundTripper, store storage.Storage, inv Invalidator, nav Navigator) *Guard {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Guard{next: next, store: store, invalidator: inv, navigator: nav}
}

// RoundTrip passes responses through unchanged. Transport errors leave the
// session alone since the server never answered.
func (g *Guard) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := g.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !isExempt(req.URL.Path) {
		log.Warn().Str("path", req.URL.Path).Msg("session rejected by server, signing out")

		if err := g.clearStored(); err != nil {
			log.Error().Err(err).Msg("failed to clear stored session")
		}
		if g.invalidator != nil {
			if err := g.invalidator.Invalidate(); err != nil {
				log.Error().Err(err).Msg("failed to clear session")
			}
		}
		if g.navigator != nil {
			g.navigator.Navigate(LoginPath)
		}
	}

	return resp, nil
}

func (g *Guard) clearStored() error {
	if g.store == nil {
		return nil
	}
	return errors.Join(
		g.store.Remove(storage.TokenKey),
		g.store.Remove(storage.UserKey),
	)
}

func isExempt(path string) bool {
	for _, p := range guardExemptPaths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}
