package authn

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// authorizationKey is the metadata key gRPC clients send the bearer credential under.
const authorizationKey = "authorization"

// UnaryServerInterceptor attaches the caller's principal to unary calls.
func (g *Gate) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(g.contextFor(ctx, info.FullMethod), req)
	}
}

// StreamServerInterceptor attaches the caller's principal to streaming calls.
func (g *Gate) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &principalStream{ServerStream: ss, ctx: g.contextFor(ss.Context(), info.FullMethod)})
	}
}

func (g *Gate) contextFor(ctx context.Context, method string) context.Context {
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(authorizationKey); len(values) > 0 {
			header = values[0]
		}
	}
	principal, err := g.Authenticate(ctx, header)
	if err != nil {
		g.logger.Debug("bearer token rejected",
			zap.String("method", method),
			zap.String("reason", err.Error()))
	}
	return WithPrincipal(ctx, principal)
}

type principalStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *principalStream) Context() context.Context {
	return s.ctx
}
