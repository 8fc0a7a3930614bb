// Package app holds the start-up wiring shared by the service binaries.
package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hongminglow/medicart-identity/internal/auth"
	"github.com/hongminglow/medicart-identity/internal/authn"
	"github.com/hongminglow/medicart-identity/internal/config"
	"github.com/hongminglow/medicart-identity/internal/logging"
	"github.com/hongminglow/medicart-identity/internal/policy"
	"github.com/hongminglow/medicart-identity/internal/server"
	"github.com/hongminglow/medicart-identity/internal/storage"
	"github.com/hongminglow/medicart-identity/internal/storage/postgres"
	"github.com/hongminglow/medicart-identity/internal/storage/sqlite"
)

// OpenUserStore picks a credential store from the DATABASE_URL scheme:
// postgres:// or postgresql:// for Postgres, sqlite://<path> for SQLite
// (sqlite://:memory: for a throwaway database).
func OpenUserStore(ctx context.Context, databaseURL string) (storage.UserStore, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := postgres.NewUserStore(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		store, err := sqlite.Open(ctx, strings.TrimPrefix(databaseURL, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme in %q", redact(databaseURL))
	}
}

// LoadPolicy reads POLICY_FILE when set and falls back to builtin otherwise.
func LoadPolicy(cfg config.Config, builtin []policy.Rule) (*policy.Policy, error) {
	if cfg.PolicyFile != "" {
		return policy.LoadFile(cfg.PolicyFile, cfg.PolicyFallback())
	}
	return policy.New(cfg.PolicyFallback(), builtin...)
}

// NewLogger builds the process logger and installs it as zap's global.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// NewSecurity builds the gate and policy pair from configuration and logs
// the active rule table.
func NewSecurity(cfg config.Config, tokens *auth.TokenManager, builtin []policy.Rule, logger *zap.Logger) (server.Security, error) {
	pol, err := LoadPolicy(cfg, builtin)
	if err != nil {
		return server.Security{}, err
	}
	for _, rule := range pol.Rules() {
		logger.Debug("route rule", zap.String("rule", rule.String()))
	}
	source := cfg.PolicyFile
	if source == "" {
		source = "builtin"
	}
	logger.Info("route policy loaded",
		zap.String("source", source),
		zap.Int("rules", len(pol.Rules())),
		zap.String("default", pol.DefaultDecision().String()))

	return server.Security{
		Gate:           authn.NewGate(tokens, logger),
		Policy:         pol,
		TrustForwarded: cfg.TrustForwardedIdentity,
	}, nil
}

func redact(databaseURL string) string {
	if scheme, _, ok := strings.Cut(databaseURL, "://"); ok {
		return scheme + "://..."
	}
	return "..."
}
