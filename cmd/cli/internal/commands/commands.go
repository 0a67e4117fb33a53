package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/invoicer/internal/client"
	"github.com/wolfeidau/invoicer/internal/logger"
	"github.com/wolfeidau/invoicer/internal/session"
	"github.com/wolfeidau/invoicer/internal/storage"
)

type Globals struct {
	Debug      bool
	Version    string
	Server     string
	StateDir   string
	ConfigPath string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (g *Globals) stdin() io.Reader {
	if g.Stdin == nil {
		return os.Stdin
	}
	return g.Stdin
}

func (g *Globals) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Globals) stderr() io.Writer {
	if g.Stderr == nil {
		return os.Stderr
	}
	return g.Stderr
}

// sessionStack is the client session wired for one command invocation.
type sessionStack struct {
	controller *session.Controller
	api        *client.AuthAPI
}

// newSessionStack loads config, restores the stored session and builds an
// HTTP client whose 401 handling signs the user out.
func (g *Globals) newSessionStack() (*sessionStack, error) {
	if g.Debug {
		logger.Setup(true)
	}

	cfg, err := client.LoadConfig(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	if g.Server != "" {
		cfg.ServerURL = g.Server
	}
	cfg.Debug = g.Debug

	store, err := storage.NewFileStorage(g.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}

	// the guard needs the controller, which needs the API built on the guard
	var controller *session.Controller
	inv := client.InvalidatorFunc(func() error { return controller.Invalidate() })

	httpClient := client.NewHTTPClient(cfg, store, inv, loginNavigator{out: g.stderr()})
	api := client.NewAuthAPI(cfg.ServerURL, httpClient)
	controller = session.NewController(api, session.NewTokenStore(store))

	if err := controller.Initialize(); err != nil {
		log.Warn().Err(err).Msg("could not restore session, continuing signed out")
	}

	log.Debug().Str("server", cfg.ServerURL).Str("state_dir", store.Dir()).Msg("session ready")

	return &sessionStack{controller: controller, api: api}, nil
}

// loginNavigator tells the user how to get back to the login entry point.
type loginNavigator struct {
	out io.Writer
}

func (n loginNavigator) Navigate(path string) {
	if path == client.LoginPath {
		fmt.Fprintln(n.out, "Your session has expired or is no longer valid. Run 'invoicer login' to sign in again.")
		return
	}
	fmt.Fprintf(n.out, "Continue at %s\n", path)
}

// resultError turns a failed result into the error reported by kong.
func resultError(res session.Result) error {
	if res.OK {
		return nil
	}
	if res.Err != nil {
		log.Debug().Err(res.Err).Msg("request failed")
	}
	return errors.New(res.Message)
}
