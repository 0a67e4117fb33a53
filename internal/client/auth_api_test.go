package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/invoicer/internal/models"
	"github.com/wolfeidau/invoicer/internal/validation"
)

func TestGrant_Kind(t *testing.T) {
	user := &models.UserProfile{ID: 1, Username: "newuser"}

	tests := []struct {
		name  string
		grant *Grant
		want  GrantKind
	}{
		{name: "nil", grant: nil, want: GrantMissingToken},
		{name: "empty", grant: &Grant{}, want: GrantMissingToken},
		{name: "user without token", grant: &Grant{User: user}, want: GrantMissingToken},
		{name: "token without user", grant: &Grant{AccessToken: "tok1"}, want: GrantTokenOnly},
		{name: "complete", grant: &Grant{AccessToken: "tok1", User: user}, want: GrantComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.grant.Kind())
		})
	}
}

func TestAuthAPI_Login(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   GrantKind
		wantAPIErr *APIError
		wantErrIs  error
	}{
		{
			name:     "complete",
			status:   http.StatusOK,
			body:     `{"message":"Login successful","access_token":"tok1","user":{"id":1,"username":"newuser"}}`,
			wantKind: GrantComplete,
		},
		{
			name:     "token only",
			status:   http.StatusOK,
			body:     `{"access_token":"tok1"}`,
			wantKind: GrantTokenOnly,
		},
		{
			name:     "null user",
			status:   http.StatusOK,
			body:     `{"access_token":"tok1","user":null}`,
			wantKind: GrantTokenOnly,
		},
		{
			name:     "missing token",
			status:   http.StatusOK,
			body:     `{"user":{"id":1,"username":"newuser"}}`,
			wantKind: GrantMissingToken,
		},
		{
			name:       "invalid credentials",
			status:     http.StatusUnauthorized,
			body:       `{"error":"Invalid credentials"}`,
			wantAPIErr: &APIError{StatusCode: http.StatusUnauthorized, Message: "Invalid credentials"},
		},
		{
			name:       "error without envelope",
			status:     http.StatusBadGateway,
			body:       `<html>bad gateway</html>`,
			wantAPIErr: &APIError{StatusCode: http.StatusBadGateway, Message: "Bad Gateway"},
		},
		{
			name:      "garbage success body",
			status:    http.StatusOK,
			body:      `not json`,
			wantErrIs: ErrInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
					http.Error(w, "unexpected request", http.StatusTeapot)
					return
				}
				var creds validation.Credentials
				if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username != "newuser" {
					http.Error(w, "unexpected body", http.StatusTeapot)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			api := NewAuthAPI(srv.URL+"/", srv.Client())
			grant, err := api.Login(context.Background(), validation.Credentials{Username: "newuser", Password: "newpass"})

			switch {
			case tt.wantAPIErr != nil:
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.wantAPIErr, apiErr)
			case tt.wantErrIs != nil:
				require.ErrorIs(t, err, tt.wantErrIs)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantKind, grant.Kind())
			}
		})
	}
}

func TestAuthAPI_Register(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message":"User created successfully","access_token":"tok1","user":{"id":1,"username":"newuser"}}`))
	}))
	defer srv.Close()

	api := NewAuthAPI(srv.URL, srv.Client())
	grant, err := api.Register(context.Background(), validation.Registration{
		Username: "newuser",
		Email:    "new@example.com",
		Password: "newpass",
	})
	require.NoError(t, err)

	assert.Equal(t, GrantComplete, grant.Kind())
	assert.Equal(t, "tok1", grant.AccessToken)
	assert.Equal(t, int64(1), grant.User.ID)

	// company name defaults to an empty string on the wire
	assert.Equal(t, map[string]string{
		"username":     "newuser",
		"email":        "new@example.com",
		"password":     "newpass",
		"company_name": "",
	}, got)
}

func TestAuthAPI_Profile(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"user":{"id":7,"username":"alice","company_name":"Acme"}}`))
		}))
		defer srv.Close()

		user, err := NewAuthAPI(srv.URL, srv.Client()).Profile(context.Background())
		require.NoError(t, err)
		assert.Equal(t, &models.UserProfile{ID: 7, Username: "alice", CompanyName: "Acme"}, user)
	})

	t.Run("missing user", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		_, err := NewAuthAPI(srv.URL, srv.Client()).Profile(context.Background())
		require.ErrorIs(t, err, ErrInvalidResponse)
	})

	t.Run("transport failure", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewAuthAPI(url, nil).Profile(context.Background())
		require.Error(t, err)

		var apiErr *APIError
		assert.False(t, errors.As(err, &apiErr))
	})
}
