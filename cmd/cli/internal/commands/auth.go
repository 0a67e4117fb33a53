package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wolfeidau/invoicer/internal/models"
	"github.com/wolfeidau/invoicer/internal/validation"
	"gopkg.in/yaml.v3"
)

// PasswordFlags reads a password from a flag, the environment or stdin.
type PasswordFlags struct {
	Password      string `help:"account password" env:"INVOICER_PASSWORD"`
	PasswordStdin bool   `help:"read the password from the first line of stdin"`
}

func (p *PasswordFlags) resolve(in io.Reader) (string, error) {
	if !p.PasswordStdin {
		return p.Password, nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type RegisterCmd struct {
	Username string `help:"username (letters, numbers, hyphens and underscores)" required:""`
	Email    string `help:"email address" required:""`
	Company  string `help:"company name shown on invoices" default:""`
	PasswordFlags
}

func (r *RegisterCmd) Run(ctx context.Context, globals *Globals) error {
	password, err := r.resolve(globals.stdin())
	if err != nil {
		return err
	}

	stack, err := globals.newSessionStack()
	if err != nil {
		return err
	}

	res := stack.controller.Register(ctx, validation.Registration{
		Username:    r.Username,
		Email:       r.Email,
		Password:    password,
		CompanyName: r.Company,
	})
	if err := resultError(res); err != nil {
		return err
	}

	fmt.Fprintf(globals.stdout(), "Registered and signed in as %s\n", displayName(stack.controller.Session().User, r.Username))
	return nil
}

type LoginCmd struct {
	Username string `help:"username" required:""`
	PasswordFlags
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	password, err := l.resolve(globals.stdin())
	if err != nil {
		return err
	}

	stack, err := globals.newSessionStack()
	if err != nil {
		return err
	}

	res := stack.controller.Login(ctx, validation.Credentials{
		Username: l.Username,
		Password: password,
	})
	if err := resultError(res); err != nil {
		return err
	}

	fmt.Fprintf(globals.stdout(), "Signed in as %s\n", displayName(stack.controller.Session().User, l.Username))
	return nil
}

type LogoutCmd struct{}

func (l *LogoutCmd) Run(globals *Globals) error {
	stack, err := globals.newSessionStack()
	if err != nil {
		return err
	}

	if err := stack.controller.Logout(); err != nil {
		return err
	}

	fmt.Fprintln(globals.stdout(), "Signed out")
	return nil
}

type ProfileCmd struct {
	Output string `help:"output format" default:"text" enum:"text,json,yaml" short:"o"`
}

// Run fetches the profile with the stored token. A rejected token signs the
// user out through the HTTP client.
func (p *ProfileCmd) Run(ctx context.Context, globals *Globals) error {
	stack, err := globals.newSessionStack()
	if err != nil {
		return err
	}

	if !stack.controller.IsAuthenticated() {
		return errors.New("not signed in, run 'invoicer login' first")
	}

	user, err := stack.api.Profile(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch profile: %w", err)
	}

	return printProfile(globals.stdout(), p.Output, user)
}

type StatusCmd struct{}

func (s *StatusCmd) Run(globals *Globals) error {
	stack, err := globals.newSessionStack()
	if err != nil {
		return err
	}

	sess := stack.controller.Session()
	out := globals.stdout()

	fmt.Fprintf(out, "Status: %s\n", sess.Status)
	if sess.User != nil {
		fmt.Fprintf(out, "User:   %s (id %d)\n", sess.User.Username, sess.User.ID)
	} else if sess.IsAuthenticated() {
		fmt.Fprintln(out, "User:   unknown (token only)")
	}

	return nil
}

func printProfile(w io.Writer, format string, user *models.UserProfile) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(user)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(user)
	default:
		fmt.Fprintf(w, "ID:       %d\n", user.ID)
		fmt.Fprintf(w, "Username: %s\n", user.Username)
		if user.Email != "" {
			fmt.Fprintf(w, "Email:    %s\n", user.Email)
		}
		if user.CompanyName != "" {
			fmt.Fprintf(w, "Company:  %s\n", user.CompanyName)
		}
		if user.CreatedAt != "" {
			fmt.Fprintf(w, "Created:  %s\n", user.CreatedAt)
		}
		return nil
	}
}

func displayName(user *models.UserProfile, fallback string) string {
	if user != nil && user.Username != "" {
		return user.Username
	}
	return fallback
}
