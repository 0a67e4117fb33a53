package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/invoicer/internal/auth"
	httpmiddleware "github.com/wolfeidau/invoicer/internal/http"
	"github.com/wolfeidau/invoicer/internal/logger"
	"github.com/wolfeidau/invoicer/internal/password"
	"github.com/wolfeidau/invoicer/internal/server"
	"github.com/wolfeidau/invoicer/internal/store"
	memorystore "github.com/wolfeidau/invoicer/internal/store/memory"
	postgresstore "github.com/wolfeidau/invoicer/internal/store/postgres"
	sqlitestore "github.com/wolfeidau/invoicer/internal/store/sqlite"
	"github.com/wolfeidau/invoicer/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/crypto/bcrypt"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:5001" env:"INVOICER_LISTEN"`
	Cert   string `help:"path to TLS cert file, serves plain HTTP when unset" default:"" env:"INVOICER_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"INVOICER_TLS_KEY"`

	// Token configuration
	JWTSecret string        `help:"secret used to sign access tokens (at least 32 bytes)" required:"" env:"JWT_SECRET_KEY"`
	TokenTTL  time.Duration `help:"access token lifetime" default:"24h" env:"INVOICER_TOKEN_TTL"`
	Issuer    string        `help:"token issuer claim" default:"invoicer" env:"INVOICER_JWT_ISSUER"`

	// Password hashing
	BcryptCost int `help:"bcrypt cost for password hashes" default:"12" env:"INVOICER_BCRYPT_COST"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"INVOICER_CORS_ORIGINS"`

	// Operational modes
	Tracing     bool    `help:"enable tracing and metrics export" default:"false" env:"INVOICER_TRACING"`
	SampleRatio float64 `help:"fraction of traces sampled when tracing" default:"1.0" env:"INVOICER_TRACE_SAMPLE_RATIO"`

	// Store configuration
	StoreType     string             `help:"store type (memory, postgres or sqlite)" default:"sqlite" env:"INVOICER_STORE_TYPE" enum:"memory,postgres,sqlite"`
	SQLitePath    string             `help:"SQLite database file" default:"invoice_app.db" env:"DATABASE_PATH"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`
	StartupRetry    time.Duration `help:"how long to retry connecting on startup" default:"30s"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"INVOICER_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

// Validate is called by kong after parsing.
func (c *ServeCmd) Validate() error {
	if len(c.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("JWT secret must be at least %d bytes (--jwt-secret or JWT_SECRET_KEY)", auth.MinSecretLength)
	}
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS requires both --cert and --key")
	}
	if c.StoreType == "postgres" {
		return c.PostgresStore.Validate()
	}
	return nil
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "invoicer-server",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	users, closeStore, err := c.openUserStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	issuer, err := auth.NewIssuer([]byte(c.JWTSecret), c.Issuer, c.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}
	verifier, err := auth.NewVerifier([]byte(c.JWTSecret), c.Issuer)
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		log.Warn().Int("cost", c.BcryptCost).Msg("bcrypt cost out of range, using default")
	}

	api := server.NewServer(users, issuer, verifier, password.NewHasher(c.BcryptCost),
		server.WithMetrics(telemetry.GetMetrics()),
	)

	var handler http.Handler = api.Handler()
	if c.Tracing {
		handler = otelhttp.NewHandler(handler, "invoicer-api")
	}
	handler = httpmiddleware.MaxBodyMiddleware(maxRequestBody)(handler)
	handler = logger.NewHTTPRequests(log).Middleware(handler)
	handler = httpmiddleware.RequestMetaMiddleware()(handler)
	handler = withCORS(c.CORSOrigins, handler)

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		tls := c.Cert != ""
		log.Info().Str("addr", c.Listen).Bool("tls", tls).Str("store", c.StoreType).Msg("Starting HTTP server")
		if tls {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// openUserStore returns the configured store and a func releasing it.
func (c *ServeCmd) openUserStore(ctx context.Context) (store.UserStore, func(), error) {
	switch c.StoreType {
	case "postgres":
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
			StartupRetry:    c.PostgresStore.StartupRetry,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		// Run migrations if enabled
		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		zlog.Info().Msg("Using PostgreSQL user store")
		return postgresstore.NewUserStore(pool), pool.Close, nil

	case "sqlite":
		users, err := sqlitestore.NewUserStore(c.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return users, func() { _ = users.Close() }, nil

	default:
		zlog.Warn().Msg("Using in-memory user store, accounts are lost on restart")
		users := memorystore.NewUserStore()
		return users, func() { _ = users.Close() }, nil
	}
}

// withCORS adds CORS support for the browser client.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
		ExposedHeaders: []string{httpmiddleware.RequestIDHeader},
	})
	return middleware.Handler(h)
}
