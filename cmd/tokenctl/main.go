// Command tokenctl issues and verifies identity tokens with the shared
// secret from JWT_SECRET, for operators debugging the gate.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/hongminglow/medicart-identity/internal/auth"
	"github.com/hongminglow/medicart-identity/internal/models"
)

const usage = `tokenctl issues and verifies identity tokens.

The signing secret is read from JWT_SECRET and the issuer from JWT_ISSUER
(default medicart-auth). A .env file in the working directory is honoured.

Usage:
  tokenctl issue --subject <email> [--role ROLE_USER] [--ttl 1h]
  tokenctl verify <token>

Examples:
  tokenctl issue --subject root@medicart.local --role ROLE_ADMIN --ttl 15m
  tokenctl verify "$TOKEN"
`

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprint(os.Stderr, usage)
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, getenv func(string) string, out io.Writer) error {
	if len(args) == 0 {
		return pflag.ErrHelp
	}
	secret := strings.TrimSpace(getenv("JWT_SECRET"))
	if secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	issuer := strings.TrimSpace(getenv("JWT_ISSUER"))
	if issuer == "" {
		issuer = "medicart-auth"
	}

	switch args[0] {
	case "issue":
		return issue(args[1:], secret, issuer, out)
	case "verify":
		return verify(args[1:], secret, issuer, out)
	case "help", "-h", "--help":
		return pflag.ErrHelp
	default:
		return fmt.Errorf("unknown command %q (want issue or verify)", args[0])
	}
}

func issue(args []string, secret, issuer string, out io.Writer) error {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	flagSet := pflag.NewFlagSet("issue", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&subject, "subject", "", "token subject (the account email)")
	flagSet.StringVar(&role, "role", models.RoleUser, "role carried in the scope claim")
	flagSet.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if subject == "" {
		return errors.New("--subject is required")
	}

	tokens := auth.NewTokenManager(secret, issuer, ttl, nil)
	token, claims, err := tokens.Issue(subject, role, time.Now(), ttl)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{
		"token":     token,
		"subject":   claims.Subject,
		"role":      claims.Role,
		"issuedAt":  claims.IssuedAt.UTC(),
		"expiresAt": claims.ExpiresAt.UTC(),
	})
}

func verify(args []string, secret, issuer string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("verify takes exactly one token")
	}

	tokens := auth.NewTokenManager(secret, issuer, time.Hour, nil)
	claims, err := tokens.Verify(strings.TrimSpace(flagSet.Arg(0)))
	if err != nil {
		return err
	}
	if claims.Role == "" {
		return auth.ErrRoleMissing
	}
	return writeJSON(out, map[string]any{
		"valid":     true,
		"subject":   claims.Subject,
		"role":      claims.Role,
		"issuedAt":  claims.IssuedAt.UTC(),
		"expiresAt": claims.ExpiresAt.UTC(),
	})
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
