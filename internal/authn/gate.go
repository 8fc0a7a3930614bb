// Package authn resolves the caller of a request from its bearer token.
//
// The gate never rejects a request. A missing, malformed, forged or expired
// token, or one without a role claim, simply leaves the request anonymous;
// enforcement belongs to the route policy that runs afterwards.
package authn

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hongminglow/medicart-identity/internal/auth"
)

// Scheme is the Authorization header scheme carrying tokens.
const Scheme = "Bearer"

var tracer = otel.Tracer("github.com/hongminglow/medicart-identity/internal/authn")

// TokenVerifier checks a raw token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// Gate turns Authorization headers into principals.
type Gate struct {
	verifier TokenVerifier
	logger   *zap.Logger
}

// NewGate creates a gate backed by verifier.
func NewGate(verifier TokenVerifier, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{verifier: verifier, logger: logger.With(zap.String("component", "authn"))}
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) <= len(Scheme) || !strings.EqualFold(header[:len(Scheme)], Scheme) || header[len(Scheme)] != ' ' {
		return "", false
	}
	token := strings.TrimSpace(header[len(Scheme)+1:])
	return token, token != ""
}

// Authenticate resolves header to a principal. A nil principal with a nil
// error means no bearer credential was offered. Any error leaves the caller
// anonymous and is only meant for diagnostics.
func (g *Gate) Authenticate(ctx context.Context, header string) (*Principal, error) {
	_, span := tracer.Start(ctx, "authn.Authenticate", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	token, ok := BearerToken(header)
	if !ok {
		span.SetAttributes(attribute.Bool("authn.anonymous", true))
		return nil, nil
	}
	claims, err := g.verifier.Verify(token)
	if err != nil {
		span.SetAttributes(attribute.String("authn.rejected", err.Error()))
		return nil, err
	}
	if claims.Role == "" {
		span.SetAttributes(attribute.String("authn.rejected", auth.ErrRoleMissing.Error()))
		return nil, auth.ErrRoleMissing
	}
	span.SetAttributes(attribute.String("authn.role", claims.Role))
	return &Principal{Subject: claims.Subject, Role: claims.Role}, nil
}

// Middleware populates the request principal. It replaces whatever principal
// the incoming context carried, so identity never leaks between requests.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, err := g.Authenticate(ctx, r.Header.Get("Authorization"))
		if err != nil {
			g.logger.Debug("bearer token rejected",
				zap.String("path", r.URL.Path),
				zap.String("reason", err.Error()))
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
	})
}
