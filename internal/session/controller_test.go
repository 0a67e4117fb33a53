package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/invoicer/internal/client"
	"github.com/wolfeidau/invoicer/internal/models"
	"github.com/wolfeidau/invoicer/internal/storage"
	"github.com/wolfeidau/invoicer/internal/validation"
)

type fakeAPI struct {
	login    func(ctx context.Context, creds validation.Credentials) (*client.Grant, error)
	register func(ctx context.Context, payload validation.Registration) (*client.Grant, error)
}

func (f *fakeAPI) Login(ctx context.Context, creds validation.Credentials) (*client.Grant, error) {
	return f.login(ctx, creds)
}

func (f *fakeAPI) Register(ctx context.Context, payload validation.Registration) (*client.Grant, error) {
	return f.register(ctx, payload)
}

// countingStorage records every write made to the wrapped storage.
type countingStorage struct {
	*storage.MemoryStorage
	writes atomic.Int32
}

func (c *countingStorage) Set(key, value string) error {
	c.writes.Add(1)
	return c.MemoryStorage.Set(key, value)
}

func (c *countingStorage) Remove(key string) error {
	c.writes.Add(1)
	return c.MemoryStorage.Remove(key)
}

func newCountingStorage() *countingStorage {
	return &countingStorage{MemoryStorage: storage.NewMemoryStorage()}
}

func grantFor(token string, user *models.UserProfile) func(context.Context, validation.Credentials) (*client.Grant, error) {
	return func(context.Context, validation.Credentials) (*client.Grant, error) {
		return &client.Grant{AccessToken: token, User: user}, nil
	}
}

func newUser() *models.UserProfile {
	return &models.UserProfile{ID: 1, Username: "newuser"}
}

func TestController_Initialize(t *testing.T) {
	tests := []struct {
		name       string
		token      *string
		user       *string
		wantAuth   bool
		wantUser   *models.UserProfile
		wantStatus Status
	}{
		{
			name:       "token and valid profile",
			token:      ptr("tok1"),
			user:       ptr(`{"id":1,"username":"newuser"}`),
			wantAuth:   true,
			wantUser:   newUser(),
			wantStatus: StatusAuthenticated,
		},
		{
			name:       "nothing stored",
			wantStatus: StatusUnauthenticated,
		},
		{
			name:       "profile without token",
			user:       ptr(`{"id":1,"username":"newuser"}`),
			wantStatus: StatusUnauthenticated,
		},
		{
			name:       "empty token",
			token:      ptr(""),
			user:       ptr(`{"id":1,"username":"newuser"}`),
			wantStatus: StatusUnauthenticated,
		},
		{
			name:       "token with corrupt profile",
			token:      ptr("tok1"),
			user:       ptr(`{not json`),
			wantAuth:   true,
			wantStatus: StatusAuthenticated,
		},
		{
			name:       "token only",
			token:      ptr("tok1"),
			wantAuth:   true,
			wantStatus: StatusAuthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storage.NewMemoryStorage()
			if tt.token != nil {
				require.NoError(t, mem.Set(storage.TokenKey, *tt.token))
			}
			if tt.user != nil {
				require.NoError(t, mem.Set(storage.UserKey, *tt.user))
			}

			api := &fakeAPI{login: func(context.Context, validation.Credentials) (*client.Grant, error) {
				t.Fatal("initialize must not call the network")
				return nil, nil
			}}
			c := NewController(api, NewTokenStore(mem))
			assert.Equal(t, StatusUninitialized, c.Session().Status)

			require.NoError(t, c.Initialize())

			s := c.Session()
			assert.Equal(t, tt.wantAuth, c.IsAuthenticated())
			assert.Equal(t, tt.wantUser, s.User)
			assert.Equal(t, tt.wantStatus, s.Status)
			assert.False(t, s.Loading)
		})
	}

	t.Run("corrupt profile entry is removed", func(t *testing.T) {
		mem := storage.NewMemoryStorage()
		require.NoError(t, mem.Set(storage.TokenKey, "tok1"))
		require.NoError(t, mem.Set(storage.UserKey, "{not json"))

		c := NewController(&fakeAPI{}, NewTokenStore(mem))
		require.NoError(t, c.Initialize())

		_, ok, _ := mem.Get(storage.UserKey)
		assert.False(t, ok)
	})

	t.Run("only the first call restores", func(t *testing.T) {
		mem := storage.NewMemoryStorage()
		c := NewController(&fakeAPI{}, NewTokenStore(mem))
		require.NoError(t, c.Initialize())

		require.NoError(t, mem.Set(storage.TokenKey, "tok1"))
		require.NoError(t, c.Initialize())

		assert.False(t, c.IsAuthenticated())
		assert.Equal(t, StatusUnauthenticated, c.Session().Status)
	})
}

func TestController_Login(t *testing.T) {
	t.Run("complete grant", func(t *testing.T) {
		mem := newCountingStorage()
		c := NewController(&fakeAPI{login: grantFor("T", newUser())}, NewTokenStore(mem))
		require.NoError(t, c.Initialize())

		res := c.Login(context.Background(), validation.Credentials{Username: "newuser", Password: "newpass"})
		require.True(t, res.OK)

		s := c.Session()
		assert.Equal(t, "T", s.Token)
		assert.Equal(t, newUser(), s.User)
		assert.Equal(t, StatusAuthenticated, s.Status)
		assert.False(t, s.Loading)

		token, _, _ := mem.Get(storage.TokenKey)
		assert.Equal(t, "T", token)
		raw, _, _ := mem.Get(storage.UserKey)
		assert.JSONEq(t, `{"id":1,"username":"newuser"}`, raw)
	})

	t.Run("token only grant", func(t *testing.T) {
		mem := newCountingStorage()
		c := NewController(&fakeAPI{login: grantFor("T", nil)}, NewTokenStore(mem))
		require.NoError(t, c.Initialize())

		res := c.Login(context.Background(), validation.Credentials{Username: "newuser", Password: "newpass"})
		require.True(t, res.OK)

		s := c.Session()
		assert.True(t, s.IsAuthenticated())
		assert.Nil(t, s.User)

		token, _, _ := mem.Get(storage.TokenKey)
		assert.Equal(t, "T", token)
		_, ok, _ := mem.Get(storage.UserKey)
		assert.False(t, ok)
	})

	t.Run("missing token", func(t *testing.T) {
		mem := newCountingStorage()
		c := NewController(&fakeAPI{login: grantFor("", newUser())}, NewTokenStore(mem))
		require.NoError(t, c.Initialize())

		res := c.Login(context.Background(), validation.Credentials{Username: "newuser", Password: "newpass"})
		assert.False(t, res.OK)
		assert.Equal(t, FailureInvalidResponse, res.Kind)
		assert.Equal(t, "Invalid response from server", res.Message)
		require.ErrorIs(t, res.Err, client.ErrInvalidResponse)

		assert.False(t, c.IsAuthenticated())
		assert.Zero(t, mem.writes.Load())
	})

	t.Run("wrong password", func(t *testing.T) {
		mem := newCountingStorage()
		api := &fakeAPI{login: func(context.Context, validation.Credentials) (*client.Grant, error) {
			return nil, &client.APIError{StatusCode: http.StatusUnauthorized, Message: "Invalid credentials"}
		}}
		c := NewController(api, NewTokenStore(mem))
		require.NoError(t, c.Initialize())

		res := c.Login(context.Background(), validation.Credentials{Username: "newuser", Password: "wrong"})
		assert.False(t, res.OK)
		assert.Equal(t, FailureRejected, res.Kind)
		assert.Equal(t, "Invalid credentials", res.Message)

		s := c.Session()
		assert.Empty(t, s.Token)
		assert.Nil(t, s.User)
		assert.Zero(t, mem.writes.Load())
	})

	t.Run("failure leaves existing session unchanged", func(t *testing.T) {
		mem := newCountingStorage()
		require.NoError(t, mem.MemoryStorage.Set(storage.TokenKey, "old"))
		require.NoError(t, mem.MemoryStorage.Set(storage.UserKey, `{"id":1,"username":"newuser"}`))

		api := &fakeAPI{login: func(context.Context, validation.Credentials) (*client.Grant, error) {
			return nil, errors.New("dial tcp 127.0.0.1:5001: connect: connection refused")
		}}
		c := NewController(api, NewTokenStore(mem))
		require.NoError(t, c.Initialize())
		before := c.Session()

		res := c.Login(context.Background(), validation.Credentials{Username: "newuser", Password: "newpass"})
		assert.Equal(t, FailureTransport, res.Kind)
		assert.Equal(t, "Unable to reach the server", res.Message)

		assert.Equal(t, before, c.Session())
		assert.Zero(t, mem.writes.Load())
	})

	t.Run("storage failure", func(t *testing.T) {
		mem := &flakyStorage{MemoryStorage: storage.NewMemoryStorage(), failSet: storage.TokenKey}
		c := NewController(&fakeAPI{login: grantFor("T", newUser())}, NewTokenStore(mem))
		require.NoError(t, c.Initialize())

		res := c.Login(context.Background(), validation.Credentials{Username: "newuser", Password: "newpass"})
		assert.Equal(t, FailureStorage, res.Kind)
		assert.False(t, c.IsAuthenticated())

		_, ok, _ := mem.Get(storage.UserKey)
		assert.False(t, ok)
	})

	t.Run("storage failure keeps existing session", func(t *testing.T) {
		alice := &models.UserProfile{ID: 1, Username: "alice"}
		mem := &flakyStorage{MemoryStorage: storage.NewMemoryStorage()}
		require.NoError(t, NewTokenStore(mem).Save("old", *alice))

		bob := &models.UserProfile{ID: 2, Username: "bob"}
		c := NewController(&fakeAPI{login: grantFor("new", bob)}, NewTokenStore(mem))
		require.NoError(t, c.Initialize())
		before := c.Session()

		mem.failSet = storage.TokenKey
		res := c.Login(context.Background(), validation.Credentials{Username: "bob", Password: "password123"})
		assert.Equal(t, FailureStorage, res.Kind)
		assert.Equal(t, before, c.Session())

		// a restart restores the same session that was in memory
		restarted := NewController(&fakeAPI{}, NewTokenStore(mem))
		require.NoError(t, restarted.Initialize())
		s := restarted.Session()
		assert.Equal(t, "old", s.Token)
		assert.Equal(t, alice, s.User)
	})
}

func TestController_Register(t *testing.T) {
	mem := storage.NewMemoryStorage()

	var got validation.Registration
	api := &fakeAPI{register: func(_ context.Context, payload validation.Registration) (*client.Grant, error) {
		got = payload
		return &client.Grant{Message: "User created successfully", AccessToken: "tok1", User: newUser()}, nil
	}}
	c := NewController(api, NewTokenStore(mem))
	require.NoError(t, c.Initialize())

	payload := validation.Registration{
		Username:    "newuser",
		Email:       "new@example.com",
		Password:    "newpass",
		CompanyName: "New Co",
	}
	res := c.Register(context.Background(), payload)
	require.True(t, res.OK)
	assert.Equal(t, "User created successfully", res.Message)
	assert.Equal(t, payload, got)

	s := c.Session()
	assert.Equal(t, "tok1", s.Token)
	assert.Equal(t, newUser(), s.User)

	token, _, _ := mem.Get(storage.TokenKey)
	assert.Equal(t, "tok1", token)

	t.Run("duplicate username", func(t *testing.T) {
		mem := newCountingStorage()
		api := &fakeAPI{register: func(context.Context, validation.Registration) (*client.Grant, error) {
			return nil, &client.APIError{StatusCode: http.StatusBadRequest, Message: "Username already exists"}
		}}
		c := NewController(api, NewTokenStore(mem))
		require.NoError(t, c.Initialize())

		res := c.Register(context.Background(), payload)
		assert.Equal(t, FailureRejected, res.Kind)
		assert.Equal(t, "Username already exists", res.Message)
		assert.False(t, c.IsAuthenticated())
		assert.Zero(t, mem.writes.Load())
	})
}

func TestController_InFlight(t *testing.T) {
	mem := storage.NewMemoryStorage()

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	api := &fakeAPI{login: func(context.Context, validation.Credentials) (*client.Grant, error) {
		calls.Add(1)
		close(entered)
		<-release
		return &client.Grant{AccessToken: "T", User: newUser()}, nil
	}}
	c := NewController(api, NewTokenStore(mem))
	require.NoError(t, c.Initialize())

	done := make(chan Result)
	go func() {
		done <- c.Login(context.Background(), validation.Credentials{Username: "newuser", Password: "newpass"})
	}()

	<-entered
	assert.True(t, c.Session().Loading)

	second := c.Register(context.Background(), validation.Registration{Username: "other"})
	assert.Equal(t, FailureBusy, second.Kind)
	require.ErrorIs(t, second.Err, ErrRequestInFlight)

	close(release)
	first := <-done
	assert.True(t, first.OK)
	assert.False(t, c.Session().Loading)
	assert.Equal(t, int32(1), calls.Load())
}

func TestController_Logout(t *testing.T) {
	tests := []struct {
		name  string
		token *string
		user  *string
	}{
		{name: "authenticated", token: ptr("tok1"), user: ptr(`{"id":1,"username":"newuser"}`)},
		{name: "token only", token: ptr("tok1")},
		{name: "orphan profile", user: ptr(`{"id":1}`)},
		{name: "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storage.NewMemoryStorage()
			if tt.token != nil {
				require.NoError(t, mem.Set(storage.TokenKey, *tt.token))
			}
			if tt.user != nil {
				require.NoError(t, mem.Set(storage.UserKey, *tt.user))
			}

			c := NewController(&fakeAPI{}, NewTokenStore(mem))
			require.NoError(t, c.Initialize())
			require.NoError(t, c.Logout())

			_, ok, _ := mem.Get(storage.TokenKey)
			assert.False(t, ok)
			_, ok, _ = mem.Get(storage.UserKey)
			assert.False(t, ok)

			s := c.Session()
			assert.False(t, s.IsAuthenticated())
			assert.Nil(t, s.User)
			assert.Equal(t, StatusUnauthenticated, s.Status)
		})
	}
}

func TestController_SessionIsSnapshot(t *testing.T) {
	c := NewController(&fakeAPI{login: grantFor("T", newUser())}, NewTokenStore(storage.NewMemoryStorage()))
	require.NoError(t, c.Initialize())
	require.True(t, c.Login(context.Background(), validation.Credentials{}).OK)

	s := c.Session()
	s.User.Username = "mutated"

	assert.Equal(t, "newuser", c.Session().User.Username)
}

// TestGuardInvalidatesController wires the controller into the HTTP client
// and fires concurrent requests that all fail with 401.
func TestGuardInvalidatesController(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Token has expired"}`))
	}))
	defer srv.Close()

	mem := storage.NewMemoryStorage()
	require.NoError(t, mem.Set(storage.TokenKey, "tok1"))
	require.NoError(t, mem.Set(storage.UserKey, `{"id":1,"username":"newuser"}`))

	var controller *Controller
	var navigations atomic.Int32
	httpClient := client.NewHTTPClient(client.DefaultConfig(), mem,
		client.InvalidatorFunc(func() error { return controller.Invalidate() }),
		client.NavigatorFunc(func(path string) {
			assert.Equal(t, client.LoginPath, path)
			navigations.Add(1)
		}),
	)
	api := client.NewAuthAPI(srv.URL, httpClient)
	controller = NewController(api, NewTokenStore(mem))
	require.NoError(t, controller.Initialize())
	require.True(t, controller.IsAuthenticated())

	const requests = 8
	var wg sync.WaitGroup
	for range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := api.Profile(context.Background())
			var apiErr *client.APIError
			assert.ErrorAs(t, err, &apiErr)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(requests), navigations.Load())
	assert.False(t, controller.IsAuthenticated())
	assert.Equal(t, StatusUnauthenticated, controller.Session().Status)

	_, ok, _ := mem.Get(storage.TokenKey)
	assert.False(t, ok)
	_, ok, _ = mem.Get(storage.UserKey)
	assert.False(t, ok)
}
