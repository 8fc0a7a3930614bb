package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hongminglow/medicart-identity/internal/policy"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	GRPCPort string `env:"GRPC_PORT"`

	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret     string `env:"JWT_SECRET"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"medicart-auth"`
	JWTTTLMinutes int    `env:"JWT_TTL_MINUTES" envDefault:"60"`

	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	OTPDemoMode      bool          `env:"OTP_DEMO_MODE" envDefault:"false"`
	OTPPurgeInterval time.Duration `env:"OTP_PURGE_INTERVAL" envDefault:"5m"`

	PolicyFile    string `env:"POLICY_FILE"`
	PolicyDefault string `env:"POLICY_DEFAULT" envDefault:"deny"`

	UpstreamURL            string `env:"UPSTREAM_URL"`
	TrustForwardedIdentity bool   `env:"TRUST_FORWARDED_IDENTITY" envDefault:"false"`

	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"SERVICE_NAME"`
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	if cfg.JWTTTLMinutes <= 0 {
		return Config{}, fmt.Errorf("JWT_TTL_MINUTES must be positive, got %d", cfg.JWTTTLMinutes)
	}
	if cfg.OTPPurgeInterval <= 0 {
		return Config{}, fmt.Errorf("OTP_PURGE_INTERVAL must be positive, got %s", cfg.OTPPurgeInterval)
	}
	if _, err := policy.ParseDefault(cfg.PolicyDefault); err != nil {
		return Config{}, fmt.Errorf("POLICY_DEFAULT: %w", err)
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return Config{}, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Port = strings.TrimSpace(c.Port)
	c.GRPCPort = strings.TrimSpace(c.GRPCPort)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	c.UpstreamURL = strings.TrimSpace(c.UpstreamURL)
	c.AdminEmail = strings.TrimSpace(c.AdminEmail)
	c.CORSOrigins = parseCSV(c.CORSOrigins)
}

// RequireDatabase checks the settings only the identity service needs.
func (c Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// RequireUpstream checks the settings only the edge needs.
func (c Config) RequireUpstream() (*url.URL, error) {
	if c.UpstreamURL == "" {
		return nil, errors.New("UPSTREAM_URL is required")
	}
	u, err := url.Parse(c.UpstreamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("UPSTREAM_URL %q is not an absolute URL", c.UpstreamURL)
	}
	return u, nil
}

// JWTTTL is the token lifetime.
func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

// PolicyFallback is the default applied when the policy table does not set one.
func (c Config) PolicyFallback() policy.Default {
	d, _ := policy.ParseDefault(c.PolicyDefault)
	return d
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// GRPCAddress returns the gRPC listen address, or "" when gRPC is disabled.
func (c Config) GRPCAddress() string {
	if c.GRPCPort == "" {
		return ""
	}
	return fmt.Sprintf(":%s", c.GRPCPort)
}

// ServiceNameOr returns SERVICE_NAME, or def when it is unset.
func (c Config) ServiceNameOr(def string) string {
	if s := strings.TrimSpace(c.ServiceName); s != "" {
		return s
	}
	return def
}

func parseCSV(values []string) []string {
	var out []string
	for _, part := range values {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
