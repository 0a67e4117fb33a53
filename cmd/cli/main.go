package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/invoicer/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Register commands.RegisterCmd `cmd:"" help:"Create an account and sign in"`
		Login    commands.LoginCmd    `cmd:"" help:"Sign in"`
		Logout   commands.LogoutCmd   `cmd:"" help:"Sign out and forget the stored session"`
		Profile  commands.ProfileCmd  `cmd:"" help:"Show the signed in user's profile"`
		Status   commands.StatusCmd   `cmd:"" help:"Show the local session state"`

		Server   string `help:"API server URL, overrides the config file" env:"INVOICER_SERVER_URL"`
		StateDir string `help:"directory holding the session" default:"~/.invoicer/session" env:"INVOICER_STATE_DIR" type:"path"`
		Config   string `help:"client config file" default:"~/.invoicer/config.yaml" env:"INVOICER_CONFIG" type:"path"`
		Debug    bool   `help:"Enable debug mode."`
		Version  kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("invoicer"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:      cli.Debug,
		Version:    version,
		Server:     cli.Server,
		StateDir:   cli.StateDir,
		ConfigPath: cli.Config,
	})
	cmd.FatalIfErrorf(err)
}
