package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer serves the standard health service behind the same gate and
// route policy as the HTTP surface.
type GRPCServer struct {
	listener net.Listener
	server   *grpc.Server
	health   *health.Server
	logger   *zap.Logger
}

// NewGRPC listens on addr and registers the health service.
func NewGRPC(addr string, sec Security, logger *zap.Logger) (*GRPCServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			sec.Gate.UnaryServerInterceptor(),
			sec.Policy.UnaryServerInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(
			sec.Gate.StreamServerInterceptor(),
			sec.Policy.StreamServerInterceptor(logger),
		),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	return &GRPCServer{listener: listener, server: srv, health: healthServer, logger: logger}, nil
}

// Addr returns the listener address.
func (s *GRPCServer) Addr() string {
	return s.listener.Addr().String()
}

// Serve runs until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context) error {
	s.logger.Info("grpc server listening", zap.String("address", s.Addr()))
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.server.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case err := <-serveErr:
		return err
	}
}
