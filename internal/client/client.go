package client

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/invoicer/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/yaml.v3"
)

// Config holds common client configuration
type Config struct {
	ServerURL string        `yaml:"server_url"`
	Timeout   time.Duration `yaml:"timeout"`
	Debug     bool          `yaml:"-"`
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:5001",
		Timeout:   30 * time.Second,
		Debug:     false,
	}
}

// LoadConfig reads a YAML config file over the defaults.
// A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is supplied by the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", path).Msg("no client config file, using defaults")
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	return cfg, nil
}

// NewHTTPClient builds the client used for every API call. Requests carry the
// bearer token read from store. A 401 response clears store, resets the
// session through inv and sends nav to the login page.
func NewHTTPClient(config Config, store storage.Storage, inv Invalidator, nav Navigator) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()

	return &http.Client{
		Timeout: config.Timeout,
		Transport: NewGuard(
			NewAuthenticator(otelhttp.NewTransport(base), store),
			store,
			inv,
			nav,
		),
	}
}
