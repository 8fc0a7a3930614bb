package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/medicart-identity/internal/auth"
	"github.com/hongminglow/medicart-identity/internal/authn"
	"github.com/hongminglow/medicart-identity/internal/clock"
	"github.com/hongminglow/medicart-identity/internal/config"
	"github.com/hongminglow/medicart-identity/internal/identity"
	"github.com/hongminglow/medicart-identity/internal/otp"
	"github.com/hongminglow/medicart-identity/internal/policy"
	"github.com/hongminglow/medicart-identity/internal/storage/sqlite"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type bundle struct {
	Token     string   `json:"token"`
	TokenType string   `json:"tokenType"`
	ExpiresIn int64    `json:"expiresIn"`
	UserID    string   `json:"userId"`
	Email     string   `json:"email"`
	FullName  string   `json:"fullName"`
	Roles     []string `json:"roles"`
}

type authFixture struct {
	handler http.Handler
	svc     *identity.Service
	tokens  *auth.TokenManager
	clock   *clock.FakeClock
}

func testConfig() config.Config {
	return config.Config{
		Port:        "0",
		CORSOrigins: []string{"*"},
		OTPDemoMode: true,
	}
}

func newAuthFixture(t *testing.T, trustForwarded bool) authFixture {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.Fake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	tokens := auth.NewTokenManager("server-secret", "medicart-auth", time.Hour, clk)
	gate := otp.NewGate(clk, otp.DefaultTTL)
	svc := identity.NewService(store, tokens, gate, zap.NewNop(), identity.Options{BcryptCost: bcrypt.MinCost})

	sec := Security{
		Gate:           authn.NewGate(tokens, zap.NewNop()),
		Policy:         policy.MustNew(policy.DefaultDeny, policy.AuthServiceRules()...),
		TrustForwarded: trustForwarded,
	}
	srv := NewAuthService(testConfig(), svc, sec, zap.NewNop())
	return authFixture{handler: srv.Handler(), svc: svc, tokens: tokens, clock: clk}
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestAuthService_RegisterLoginAndMe(t *testing.T) {
	f := newAuthFixture(t, false)

	status, env := do(t, f.handler, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "a@x.com", "password": "p1", "fullName": "Ada", "phone": "555",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	registered := decodeData[bundle](t, env)
	assert.Equal(t, "Bearer", registered.TokenType)
	assert.Equal(t, int64(3600), registered.ExpiresIn)
	assert.Equal(t, []string{"ROLE_USER"}, registered.Roles)

	status, env = do(t, f.handler, http.MethodPost, "/auth/login", "", map[string]string{"email": "a@x.com", "password": "p1"})
	require.Equal(t, http.StatusOK, status)
	login := decodeData[bundle](t, env)
	assert.Equal(t, registered.UserID, login.UserID)

	status, env = do(t, f.handler, http.MethodGet, "/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, status)
	me := decodeData[map[string]any](t, env)
	assert.Equal(t, "a@x.com", me["email"])
	assert.NotContains(t, me, "passwordHash")

	status, env = do(t, f.handler, http.MethodGet, "/auth/validate", login.Token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "token is valid", env.Message)

	// Past exp the same token no longer establishes a principal.
	f.clock.Advance(time.Hour + time.Second)
	status, env = do(t, f.handler, http.MethodGet, "/auth/me", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", env.Message)
}

func TestAuthService_LoginFailuresLookAlike(t *testing.T) {
	f := newAuthFixture(t, false)
	_, err := f.svc.Register(context.Background(), "a@x.com", "p1", identity.Profile{})
	require.NoError(t, err)

	wrongStatus, wrong := do(t, f.handler, http.MethodPost, "/auth/login", "", map[string]string{"email": "a@x.com", "password": "nope"})
	ghostStatus, ghost := do(t, f.handler, http.MethodPost, "/auth/login", "", map[string]string{"email": "ghost@x.com", "password": "p1"})

	assert.Equal(t, http.StatusUnauthorized, wrongStatus)
	assert.Equal(t, wrongStatus, ghostStatus)
	assert.Equal(t, wrong, ghost)
}

func TestAuthService_RegisterValidationAndConflict(t *testing.T) {
	f := newAuthFixture(t, false)

	status, env := do(t, f.handler, http.MethodPost, "/auth/register", "", map[string]string{"email": "nope", "password": "p1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "email")

	status, _ = do(t, f.handler, http.MethodPost, "/auth/register", "", map[string]string{"email": "a@x.com", "password": "p1"})
	require.Equal(t, http.StatusCreated, status)
	status, env = do(t, f.handler, http.MethodPost, "/auth/register", "", map[string]string{"email": "a@x.com", "password": "p1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "user already exists", env.Message)
}

func TestAuthService_OtpFlow(t *testing.T) {
	f := newAuthFixture(t, false)

	status, env := do(t, f.handler, http.MethodPost, "/auth/otp/send", "", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, status)
	sent := decodeData[map[string]any](t, env)
	assert.Equal(t, float64(10), sent["expiryMinutes"])
	code, _ := sent["demoCode"].(string)
	require.Len(t, code, 6)

	wrong := "100000"
	if code == wrong {
		wrong = "999999"
	}
	status, env = do(t, f.handler, http.MethodPost, "/auth/otp/verify", "", map[string]string{"email": "a@x.com", "otp": wrong})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid otp", env.Message)

	status, env = do(t, f.handler, http.MethodPost, "/auth/otp/verify", "", map[string]string{
		"email": "a@x.com", "otp": code, "fullName": "Ada", "phone": "555", "password": "p1",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	assert.NotEmpty(t, decodeData[bundle](t, env).Token)

	status, _ = do(t, f.handler, http.MethodPost, "/auth/otp/verify", "", map[string]string{"email": "a@x.com", "otp": code})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAuthService_OtpVerifyOnlyAndExpiry(t *testing.T) {
	f := newAuthFixture(t, false)

	_, env := do(t, f.handler, http.MethodPost, "/auth/otp/send", "", map[string]string{"email": "b@x.com"})
	code := decodeData[map[string]any](t, env)["demoCode"].(string)
	status, env := do(t, f.handler, http.MethodPost, "/auth/otp/verify", "", map[string]string{"email": "b@x.com", "otp": code})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "verified", decodeData[map[string]any](t, env)["status"])

	_, env = do(t, f.handler, http.MethodPost, "/auth/otp/send", "", map[string]string{"email": "b@x.com"})
	code = decodeData[map[string]any](t, env)["demoCode"].(string)
	f.clock.Advance(otp.DefaultTTL + time.Second)
	status, env = do(t, f.handler, http.MethodPost, "/auth/otp/verify", "", map[string]string{"email": "b@x.com", "otp": code})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "otp expired", env.Message)
}

func TestAuthService_ProfileUpdateIsSelfOnly(t *testing.T) {
	f := newAuthFixture(t, false)
	ctx := context.Background()
	ada, err := f.svc.Register(ctx, "a@x.com", "p1", identity.Profile{FullName: "Ada"})
	require.NoError(t, err)
	bob, err := f.svc.Register(ctx, "b@x.com", "p1", identity.Profile{FullName: "Bob"})
	require.NoError(t, err)

	status, env := do(t, f.handler, http.MethodGet, "/auth/users/"+ada.User.ID, bob.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ada", decodeData[map[string]any](t, env)["fullName"])

	status, env = do(t, f.handler, http.MethodPut, "/auth/users/"+ada.User.ID, bob.Token, map[string]string{"fullName": "Mallory"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", env.Message)

	status, env = do(t, f.handler, http.MethodPut, "/auth/users/"+ada.User.ID, ada.Token, map[string]string{"fullName": "Ada L"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ada L", decodeData[map[string]any](t, env)["fullName"])

	status, _ = do(t, f.handler, http.MethodGet, "/auth/users/not-a-uuid", ada.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, f.handler, http.MethodGet, "/auth/users/"+ada.User.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAuthService_DefaultDenyAndHealth(t *testing.T) {
	f := newAuthFixture(t, false)
	sess, err := f.svc.Register(context.Background(), "a@x.com", "p1", identity.Profile{})
	require.NoError(t, err)

	status, _ := do(t, f.handler, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, env := do(t, f.handler, http.MethodGet, "/auth/unknown", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", env.Message)

	status, env = do(t, f.handler, http.MethodDelete, "/auth/users/"+sess.User.ID, sess.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", env.Message)
}

func TestAuthService_TrustForwardedIdentity(t *testing.T) {
	f := newAuthFixture(t, true)
	_, err := f.svc.Register(context.Background(), "a@x.com", "p1", identity.Profile{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set(authn.HeaderUserID, "a@x.com")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	untrusting := newAuthFixture(t, false)
	rec = httptest.NewRecorder()
	untrusting.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
