package server

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/invoicer/internal/auth"
	"github.com/wolfeidau/invoicer/internal/models"
	"github.com/wolfeidau/invoicer/internal/password"
	"github.com/wolfeidau/invoicer/internal/store"
	"github.com/wolfeidau/invoicer/internal/validation"
)

const invalidCredentialsMsg = "Invalid credentials"

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Message     string             `json:"message"`
	AccessToken string             `json:"access_token"`
	User        models.UserProfile `json:"user"`
}

// ProfileResponse is returned by the profile endpoint.
type ProfileResponse struct {
	User models.UserProfile `json:"user"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req validation.Registration
	if !decodeJSON(w, r, &req) {
		s.metrics.RecordRegistration(ctx, "invalid_request")
		return
	}

	if err := req.Validate(); err != nil {
		s.metrics.RecordRegistration(ctx, "invalid_request")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to hash password")
		writeError(w, http.StatusInternalServerError, internalErrorMsg)
		return
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		CompanyName:  req.CompanyName,
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, store.ErrUsernameTaken):
			s.metrics.RecordRegistration(ctx, "conflict")
			writeError(w, http.StatusBadRequest, "Username already exists")
		case errors.Is(err, store.ErrEmailTaken):
			s.metrics.RecordRegistration(ctx, "conflict")
			writeError(w, http.StatusBadRequest, "Email already exists")
		default:
			zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to create user")
			writeError(w, http.StatusInternalServerError, internalErrorMsg)
		}
		return
	}

	token, ok := s.issueToken(w, r, user)
	if !ok {
		return
	}

	s.metrics.RecordRegistration(ctx, "success")
	zerolog.Ctx(ctx).Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("User registered")

	writeJSON(w, http.StatusCreated, AuthResponse{
		Message:     "User created successfully",
		AccessToken: token,
		User:        user.Profile(),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req validation.Credentials
	if !decodeJSON(w, r, &req) {
		s.metrics.RecordLogin(ctx, "invalid_request")
		return
	}

	if err := req.Validate(); err != nil {
		s.metrics.RecordLogin(ctx, "invalid_request")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to look up user")
			writeError(w, http.StatusInternalServerError, internalErrorMsg)
			return
		}
		s.hasher.DummyCompare(req.Password)
		s.rejectLogin(w, r, req.Username)
		return
	}

	if err := s.hasher.Compare(req.Password, user.PasswordHash); err != nil {
		if !errors.Is(err, password.ErrMismatchedHashAndPassword) {
			zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", user.ID).Msg("Failed to compare password hash")
		}
		s.rejectLogin(w, r, req.Username)
		return
	}

	token, ok := s.issueToken(w, r, user)
	if !ok {
		return
	}

	s.metrics.RecordLogin(ctx, "success")
	zerolog.Ctx(ctx).Info().Int64("user_id", user.ID).Msg("User logged in")

	writeJSON(w, http.StatusOK, AuthResponse{
		Message:     "Login successful",
		AccessToken: token,
		User:        user.Profile(),
	})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal := auth.PrincipalFromContext(ctx)
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authorization token is required")
		return
	}

	user, err := s.users.GetByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", principal.UserID).Msg("Failed to load profile")
		writeError(w, http.StatusInternalServerError, internalErrorMsg)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{User: user.Profile()})
}

func (s *Server) rejectLogin(w http.ResponseWriter, r *http.Request, username string) {
	s.metrics.RecordLogin(r.Context(), "invalid_credentials")
	zerolog.Ctx(r.Context()).Warn().Str("username", username).Msg("Login failed")
	writeError(w, http.StatusUnauthorized, invalidCredentialsMsg)
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, user *models.User) (string, bool) {
	token, err := s.issuer.IssueToken(user.ID)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Int64("user_id", user.ID).Msg("Failed to issue token")
		writeError(w, http.StatusInternalServerError, internalErrorMsg)
		return "", false
	}
	s.metrics.RecordTokenIssued(r.Context())
	return token, true
}
