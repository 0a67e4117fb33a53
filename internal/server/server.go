package server

import (
	"net/http"

	"github.com/wolfeidau/invoicer/internal/auth"
	"github.com/wolfeidau/invoicer/internal/password"
	"github.com/wolfeidau/invoicer/internal/store"
	"github.com/wolfeidau/invoicer/internal/telemetry"
)

// Server serves the invoicing REST API.
type Server struct {
	users    store.UserStore
	issuer   *auth.Issuer
	verifier *auth.Verifier
	hasher   *password.Hasher
	metrics  *telemetry.Metrics
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithMetrics overrides the metrics instruments, mainly for tests.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a new server with the given user store and token issuer/verifier pair.
func NewServer(users store.UserStore, issuer *auth.Issuer, verifier *auth.Verifier, hasher *password.Hasher, opts ...Option) *Server {
	s := &Server{
		users:    users,
		issuer:   issuer,
		verifier: verifier,
		hasher:   hasher,
		metrics:  telemetry.GetMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.health)

	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)

	requireAuth := s.verifier.Middleware(func(r *http.Request, err error) {
		s.metrics.RecordTokenRejection(r.Context(), auth.RejectionReason(err))
	})
	mux.Handle("GET /api/auth/profile", requireAuth(http.HandlerFunc(s.profile)))

	// everything else gets the JSON envelope rather than the mux's plain text
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Endpoint not found")
	})

	return mux
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Message: "Invoice API is running",
	})
}
