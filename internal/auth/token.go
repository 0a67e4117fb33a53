package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultIssuer is the iss claim written into every access token.
	DefaultIssuer = "invoicer"

	// DefaultTokenTTL is how long an access token stays valid.
	DefaultTokenTTL = 24 * time.Hour

	// MinSecretLength is the minimum HMAC secret size in bytes.
	MinSecretLength = 32
)

var ErrSecretTooShort = errors.New("JWT secret must be at least 32 bytes (256 bits) for HMAC-SHA256")

// Issuer mints HS256 access tokens bound to a user ID.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates a token issuer. An empty issuer or zero ttl fall back to
// DefaultIssuer and DefaultTokenTTL.
func NewIssuer(secret []byte, issuer string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	return &Issuer{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// IssueToken creates a signed JWT token for the given user.
func (i *Issuer) IssueToken(userID int64) (string, error) {
	now := i.now()
	claims := &jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		Issuer:    i.issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}
