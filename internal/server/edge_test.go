package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hongminglow/medicart-identity/internal/auth"
	"github.com/hongminglow/medicart-identity/internal/authn"
	"github.com/hongminglow/medicart-identity/internal/clock"
	"github.com/hongminglow/medicart-identity/internal/models"
	"github.com/hongminglow/medicart-identity/internal/policy"
)

type seenRequest struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	UserID string `json:"userId"`
	Count  int    `json:"count"`
}

func newEdgeFixture(t *testing.T, upstreamURL string) (http.Handler, *auth.TokenManager) {
	t.Helper()
	clk := clock.Fake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	tokens := auth.NewTokenManager("edge-secret", "medicart-auth", time.Hour, clk)
	upstream, err := url.Parse(upstreamURL)
	require.NoError(t, err)

	sec := Security{
		Gate:           authn.NewGate(tokens, zap.NewNop()),
		Policy:         policy.MustNew(policy.DefaultDeny, policy.EdgeRules()...),
		TrustForwarded: true,
	}
	return NewEdge(testConfig(), upstream, sec, zap.NewNop()).Handler(), tokens
}

func echoUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(seenRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			UserID: r.Header.Get(authn.HeaderUserID),
			Count:  len(r.Header.Values(authn.HeaderUserID)),
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func edgeCall(t *testing.T, h http.Handler, method, path, token, spoof string) (*httptest.ResponseRecorder, seenRequest) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if spoof != "" {
		req.Header.Set(authn.HeaderUserID, spoof)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var seen seenRequest
	if rec.Code == http.StatusOK {
		_ = json.Unmarshal(rec.Body.Bytes(), &seen)
	}
	return rec, seen
}

func TestEdge_ForwardsResolvedSubject(t *testing.T) {
	h, tokens := newEdgeFixture(t, echoUpstream(t).URL)
	token, _, err := tokens.Issue("a@x.com", models.RoleUser, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), time.Hour)
	require.NoError(t, err)

	rec, seen := edgeCall(t, h, http.MethodGet, "/cart/items", token, "admin@x.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/cart/items", seen.Path)
	assert.Equal(t, "a@x.com", seen.UserID)
	assert.Equal(t, 1, seen.Count)
}

func TestEdge_StripsSpoofedIdentityOnPublicRoutes(t *testing.T) {
	h, _ := newEdgeFixture(t, echoUpstream(t).URL)

	rec, seen := edgeCall(t, h, http.MethodGet, "/medicines/7", "", "admin@x.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, seen.UserID)
	assert.Equal(t, 0, seen.Count)
}

func TestEdge_EnforcesPolicy(t *testing.T) {
	h, tokens := newEdgeFixture(t, echoUpstream(t).URL)
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	userToken, _, err := tokens.Issue("u@x.com", models.RoleUser, issued, time.Hour)
	require.NoError(t, err)
	adminToken, _, err := tokens.Issue("root@x.com", models.RoleAdmin, issued, time.Hour)
	require.NoError(t, err)

	rec, _ := edgeCall(t, h, http.MethodGet, "/cart", "", "u@x.com")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		for _, path := range []string{"/medicines/7", "/batches/3"} {
			rec, _ := edgeCall(t, h, method, path, userToken, "")
			assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", method, path)
		}
	}

	rec, seen := edgeCall(t, h, http.MethodPatch, "/batches/3", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.MethodPatch, seen.Method)

	rec, seen = edgeCall(t, h, http.MethodDelete, "/medicines/7", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.MethodDelete, seen.Method)
	assert.Equal(t, "root@x.com", seen.UserID)

	rec, _ = edgeCall(t, h, http.MethodGet, "/medicines/../cart", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEdge_HealthIsLocal(t *testing.T) {
	h, _ := newEdgeFixture(t, "http://127.0.0.1:1")
	rec, _ := edgeCall(t, h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "edge-service")
}

func TestEdge_UpstreamDown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	h, _ := newEdgeFixture(t, deadURL)
	rec, _ := edgeCall(t, h, http.MethodGet, "/medicines", "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "upstream unavailable")
}
