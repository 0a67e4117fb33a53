package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Principal represents an authenticated user from a verified access token.
// This is added to the request context after successful JWT verification.
type Principal struct {
	UserID int64
}

type contextKey int

const (
	principalContextKey contextKey = iota
)

// PrincipalFromContext extracts the authenticated principal from the request context.
// Returns nil if no principal is present (unauthenticated request).
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey).(*Principal)
	return principal
}

// WithPrincipal returns a copy of ctx carrying the principal.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// RejectionFunc is called for every rejected token with the verification error.
type RejectionFunc func(r *http.Request, err error)

// Middleware returns an HTTP middleware that requires a valid bearer token.
// Rejections are answered with 401 and a JSON error body.
func (v *Verifier) Middleware(onReject RejectionFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := v.Verify(extractBearerToken(r))
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected access token")
				if onReject != nil {
					onReject(r, err)
				}
				writeUnauthorized(w, RejectionMessage(err))
				return
			}

			ctx := WithPrincipal(r.Context(), &Principal{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RejectionMessage returns the client facing message for a verification error.
func RejectionMessage(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "Authorization token is required"
	case errors.Is(err, ErrTokenExpired):
		return "Token has expired"
	default:
		return "Invalid token"
	}
}

// RejectionReason returns a short label for a verification error, for metrics.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "missing"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	default:
		return "invalid"
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="invoicer"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// extractBearerToken extracts the JWT from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
