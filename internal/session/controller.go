package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/invoicer/internal/client"
	"github.com/wolfeidau/invoicer/internal/models"
	"github.com/wolfeidau/invoicer/internal/validation"
)

// ErrRequestInFlight is returned when login or register is called while
// another such call has not finished.
var ErrRequestInFlight = errors.New("request already in flight")

const (
	inFlightMsg        = "A request is already in progress"
	invalidResponseMsg = "Invalid response from server"
	unreachableMsg     = "Unable to reach the server"
	storageFailureMsg  = "Unable to save session"
)

// Status is the position of a session in its lifecycle.
//
//	uninitialized -> loading -> authenticated | unauthenticated
//	authenticated -> unauthenticated (logout or rejected token)
type Status int

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "uninitialized"
	}
}

// Session is a snapshot of the client session.
type Session struct {
	Token   string
	User    *models.UserProfile
	Loading bool
	Status  Status
}

// IsAuthenticated reports whether a non-empty token is held.
func (s Session) IsAuthenticated() bool {
	return s.Token != ""
}

// FailureKind classifies an unsuccessful Result.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureRejected is an error response from the server, such as bad
	// credentials, a taken username or a validation message.
	FailureRejected
	// FailureTransport means the server never answered.
	FailureTransport
	// FailureInvalidResponse is a success status without a usable body.
	FailureInvalidResponse
	// FailureBusy means another login or register call is in flight.
	FailureBusy
	// FailureStorage means the session could not be persisted.
	FailureStorage
)

// Result is the outcome of a login or register call. Expected failures are
// reported here instead of as errors so the caller can show Message.
type Result struct {
	OK      bool
	Kind    FailureKind
	Message string
	Err     error
}

// AuthAPI is the subset of the API used to obtain a session.
type AuthAPI interface {
	Login(ctx context.Context, creds validation.Credentials) (*client.Grant, error)
	Register(ctx context.Context, payload validation.Registration) (*client.Grant, error)
}

var _ client.Invalidator = (*Controller)(nil)

// Controller is the single writer of the session. It is safe for concurrent
// use; readers get value snapshots.
type Controller struct {
	api    AuthAPI
	tokens *TokenStore

	mu      sync.RWMutex
	session Session

	initOnce sync.Once
	inFlight atomic.Bool
}

func NewController(api AuthAPI, tokens *TokenStore) *Controller {
	return &Controller{
		api:    api,
		tokens: tokens,
	}
}

// Initialize restores the session from durable storage. Only the first call
// has any effect, and it never touches the network. Storage read errors are
// returned but still resolve the session as unauthenticated.
func (c *Controller) Initialize() error {
	var err error
	c.initOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.session = Session{Loading: true, Status: StatusLoading}

		var (
			token string
			user  *models.UserProfile
		)
		token, err = c.tokens.Token()
		if err == nil && token != "" {
			user, err = c.tokens.User()
		}

		if err != nil {
			log.Error().Err(err).Msg("failed to restore session")
			token, user = "", nil
		}

		c.session = resolved(token, user)

		log.Debug().Str("status", c.session.Status.String()).Msg("session restored")
	})
	return err
}

// Login exchanges credentials for a session.
func (c *Controller) Login(ctx context.Context, creds validation.Credentials) Result {
	return c.authenticate(func() (*client.Grant, error) {
		return c.api.Login(ctx, creds)
	})
}

// Register creates an account and signs in with it.
func (c *Controller) Register(ctx context.Context, payload validation.Registration) Result {
	return c.authenticate(func() (*client.Grant, error) {
		return c.api.Register(ctx, payload)
	})
}

// Logout clears the session and its stored entries without calling the server.
func (c *Controller) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = resolved("", nil)

	if err := c.tokens.Clear(); err != nil {
		return fmt.Errorf("failed to clear stored session: %w", err)
	}

	log.Debug().Msg("logged out")

	return nil
}

// Invalidate clears the session after the server rejected the token.
// Repeated calls leave the session unauthenticated.
func (c *Controller) Invalidate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasAuthenticated := c.session.IsAuthenticated()
	c.session = resolved("", nil)

	if err := c.tokens.Clear(); err != nil {
		return fmt.Errorf("failed to clear stored session: %w", err)
	}

	if wasAuthenticated {
		log.Info().Msg("session invalidated")
	}

	return nil
}

// Session returns a copy of the current session.
func (c *Controller) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.session
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func (c *Controller) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.session.IsAuthenticated()
}

func (c *Controller) authenticate(call func() (*client.Grant, error)) Result {
	if !c.inFlight.CompareAndSwap(false, true) {
		return Result{Kind: FailureBusy, Message: inFlightMsg, Err: ErrRequestInFlight}
	}
	defer c.inFlight.Store(false)

	c.setLoading(true)
	defer c.setLoading(false)

	grant, err := call()
	if err != nil {
		return failure(err)
	}

	return c.apply(grant)
}

// apply stores a successful grant. Storage and memory change under one lock
// so no reader sees a token without its user.
func (c *Controller) apply(grant *client.Grant) Result {
	kind := grant.Kind()
	if kind == client.GrantMissingToken {
		log.Warn().Msg("server response carried no access token")
		return Result{
			Kind:    FailureInvalidResponse,
			Message: invalidResponseMsg,
			Err:     fmt.Errorf("%w: missing access token", client.ErrInvalidResponse),
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if kind == client.GrantComplete {
		err = c.tokens.Save(grant.AccessToken, *grant.User)
	} else {
		err = c.tokens.SaveToken(grant.AccessToken)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to persist session")
		return Result{Kind: FailureStorage, Message: storageFailureMsg, Err: err}
	}

	var user *models.UserProfile
	if kind == client.GrantComplete {
		u := *grant.User
		user = &u
	}

	loading := c.session.Loading
	c.session = resolved(grant.AccessToken, user)
	c.session.Loading = loading

	return Result{OK: true, Message: grant.Message}
}

func (c *Controller) setLoading(loading bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session.Loading = loading
}

func resolved(token string, user *models.UserProfile) Session {
	if token == "" {
		return Session{Status: StatusUnauthenticated}
	}
	return Session{Token: token, User: user, Status: StatusAuthenticated}
}

func failure(err error) Result {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		return Result{Kind: FailureRejected, Message: apiErr.Message, Err: err}
	case errors.Is(err, client.ErrInvalidResponse):
		return Result{Kind: FailureInvalidResponse, Message: invalidResponseMsg, Err: err}
	default:
		return Result{Kind: FailureTransport, Message: unreachableMsg, Err: err}
	}
}
