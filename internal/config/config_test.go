package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/medicart-identity/internal/policy"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddress())
	assert.Equal(t, "", cfg.GRPCAddress())
	assert.Equal(t, "medicart-auth", cfg.JWTIssuer)
	assert.Equal(t, time.Hour, cfg.JWTTTL())
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.OTPDemoMode)
	assert.Equal(t, 5*time.Minute, cfg.OTPPurgeInterval)
	assert.Equal(t, policy.DefaultDeny, cfg.PolicyFallback())
	assert.Equal(t, "auth-service", cfg.ServiceNameOr("auth-service"))
	assert.Error(t, cfg.RequireDatabase())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", " s3cret ")
	t.Setenv("PORT", "9000")
	t.Setenv("GRPC_PORT", "9090")
	t.Setenv("JWT_TTL_MINUTES", "15")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("OTP_DEMO_MODE", "true")
	t.Setenv("POLICY_DEFAULT", "permit")
	t.Setenv("DATABASE_URL", "sqlite://:memory:")
	t.Setenv("SERVICE_NAME", "edge")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, ":9000", cfg.HTTPAddress())
	assert.Equal(t, ":9090", cfg.GRPCAddress())
	assert.Equal(t, 15*time.Minute, cfg.JWTTTL())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.OTPDemoMode)
	assert.Equal(t, policy.DefaultPermit, cfg.PolicyFallback())
	assert.NoError(t, cfg.RequireDatabase())
	assert.Equal(t, "edge", cfg.ServiceNameOr("auth-service"))
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":  {},
		"zero ttl":        {"JWT_SECRET": "x", "JWT_TTL_MINUTES": "0"},
		"bad ttl":         {"JWT_SECRET": "x", "JWT_TTL_MINUTES": "soon"},
		"bad default":     {"JWT_SECRET": "x", "POLICY_DEFAULT": "maybe"},
		"half admin":      {"JWT_SECRET": "x", "ADMIN_EMAIL": "root@x.com"},
		"bad purge":       {"JWT_SECRET": "x", "OTP_PURGE_INTERVAL": "0s"},
		"bad demo toggle": {"JWT_SECRET": "x", "OTP_DEMO_MODE": "perhaps"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRequireUpstream(t *testing.T) {
	cfg := Config{}
	_, err := cfg.RequireUpstream()
	assert.Error(t, err)

	cfg.UpstreamURL = "not a url"
	_, err = cfg.RequireUpstream()
	assert.Error(t, err)

	cfg.UpstreamURL = "http://catalogue:8082"
	u, err := cfg.RequireUpstream()
	require.NoError(t, err)
	assert.Equal(t, "catalogue:8082", u.Host)
}
