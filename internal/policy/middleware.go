package policy

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hongminglow/medicart-identity/internal/authn"
	"github.com/hongminglow/medicart-identity/internal/http/respond"
)

// Outward denial messages. They never say which rule applied.
const (
	MessageUnauthorized = "unauthorized"
	MessageForbidden    = "forbidden"
)

// grpcMethod is the HTTP method gRPC calls are evaluated under.
const grpcMethod = http.MethodPost

// Middleware enforces the policy on HTTP requests. It must run after the
// authentication gate and behind the CORS layer, which answers preflights.
func (p *Policy) Middleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "policy"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := authn.PrincipalFromContext(r.Context())
			decision := p.Decide(r.Method, r.URL.Path, principal)
			switch decision {
			case Allow:
				next.ServeHTTP(w, r)
				return
			case DenyUnauthenticated:
				respond.Unauthorized(w, MessageUnauthorized)
			default:
				respond.Error(w, http.StatusForbidden, MessageForbidden)
			}
			logger.Info("request denied",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("decision", decision.String()),
				zap.String("subject", subjectOf(principal)))
		})
	}
}

// UnaryServerInterceptor enforces the policy on unary gRPC calls, evaluated
// as POST /package.Service/Method.
func (p *Policy) UnaryServerInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := p.checkRPC(ctx, info.FullMethod, logger); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor enforces the policy on streaming gRPC calls.
func (p *Policy) StreamServerInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := p.checkRPC(ss.Context(), info.FullMethod, logger); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func (p *Policy) checkRPC(ctx context.Context, fullMethod string, logger *zap.Logger) error {
	principal, _ := authn.PrincipalFromContext(ctx)
	if !strings.HasPrefix(fullMethod, "/") {
		fullMethod = "/" + fullMethod
	}
	decision := p.Decide(grpcMethod, fullMethod, principal)
	if decision.Allowed() {
		return nil
	}
	if logger != nil {
		logger.Info("rpc denied",
			zap.String("method", fullMethod),
			zap.String("decision", decision.String()),
			zap.String("subject", subjectOf(principal)))
	}
	if decision == DenyUnauthenticated {
		return status.Error(codes.Unauthenticated, MessageUnauthorized)
	}
	return status.Error(codes.PermissionDenied, MessageForbidden)
}

func subjectOf(p *authn.Principal) string {
	if p == nil {
		return ""
	}
	return p.Subject
}
