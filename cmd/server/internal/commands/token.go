package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfeidau/invoicer/internal/auth"
)

type TokenCmd struct {
	UserID    int64         `help:"User id to issue the token for" required:""`
	TTL       time.Duration `help:"Token lifetime" default:"1h"`
	Issuer    string        `help:"token issuer claim" default:"invoicer" env:"INVOICER_JWT_ISSUER"`
	JWTSecret string        `help:"JWT signing secret (at least 32 bytes)" required:"" env:"JWT_SECRET_KEY"`
}

func (t *TokenCmd) Run(ctx context.Context) error {
	issuer, err := auth.NewIssuer([]byte(t.JWTSecret), t.Issuer, t.TTL)
	if err != nil {
		return err
	}

	token, err := issuer.IssueToken(t.UserID)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
