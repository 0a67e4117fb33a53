package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wolfeidau/invoicer/internal/models"
	"github.com/wolfeidau/invoicer/internal/validation"
)

// ErrInvalidResponse is returned when a successful response body cannot be decoded.
var ErrInvalidResponse = errors.New("invalid response from server")

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// GrantKind classifies what a successful login or register response carried.
type GrantKind int

const (
	// GrantMissingToken means the response had no access token.
	GrantMissingToken GrantKind = iota
	// GrantTokenOnly means a token without a user record.
	GrantTokenOnly
	// GrantComplete means both token and user are present.
	GrantComplete
)

func (k GrantKind) String() string {
	switch k {
	case GrantComplete:
		return "complete"
	case GrantTokenOnly:
		return "token_only"
	default:
		return "missing_token"
	}
}

// Grant is the body of a successful login or register call.
type Grant struct {
	Message     string              `json:"message,omitempty"`
	AccessToken string              `json:"access_token"`
	User        *models.UserProfile `json:"user"`
}

// Kind reports which fields the server actually returned.
func (g *Grant) Kind() GrantKind {
	switch {
	case g == nil || g.AccessToken == "":
		return GrantMissingToken
	case g.User == nil:
		return GrantTokenOnly
	default:
		return GrantComplete
	}
}

type profileResponse struct {
	User *models.UserProfile `json:"user"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// AuthAPI calls the authentication endpoints.
type AuthAPI struct {
	baseURL    string
	httpClient *http.Client
}

func NewAuthAPI(baseURL string, httpClient *http.Client) *AuthAPI {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AuthAPI{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (a *AuthAPI) Register(ctx context.Context, payload validation.Registration) (*Grant, error) {
	var grant Grant
	if err := a.do(ctx, http.MethodPost, "/api/auth/register", payload, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

func (a *AuthAPI) Login(ctx context.Context, creds validation.Credentials) (*Grant, error) {
	var grant Grant
	if err := a.do(ctx, http.MethodPost, "/api/auth/login", creds, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// Profile fetches the signed in user. A 401 here is handled by the Guard.
func (a *AuthAPI) Profile(ctx context.Context) (*models.UserProfile, error) {
	var out profileResponse
	if err := a.do(ctx, http.MethodGet, "/api/auth/profile", nil, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, ErrInvalidResponse
	}
	return out.User, nil
}

func (a *AuthAPI) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	return nil
}

func newAPIError(status int, body []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == "" {
		return &APIError{StatusCode: status, Message: http.StatusText(status)}
	}
	return &APIError{StatusCode: status, Message: env.Error}
}
