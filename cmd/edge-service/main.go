package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hongminglow/medicart-identity/internal/app"
	"github.com/hongminglow/medicart-identity/internal/auth"
	"github.com/hongminglow/medicart-identity/internal/config"
	"github.com/hongminglow/medicart-identity/internal/policy"
	"github.com/hongminglow/medicart-identity/internal/server"
	"github.com/hongminglow/medicart-identity/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("read .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	upstream, err := cfg.RequireUpstream()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, upstream, logger); err != nil {
		logger.Fatal("edge service stopped", zap.Error(err))
	}
}

func run(cfg config.Config, upstream *url.URL, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceNameOr("edge-service"), cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL(), nil)
	sec, err := app.NewSecurity(cfg, tokens, policy.EdgeRules(), logger)
	if err != nil {
		return err
	}
	srv := server.NewEdge(cfg, upstream, sec, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("edge listening",
			zap.String("address", srv.Addr()),
			zap.String("upstream", upstream.Redacted()))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		stop()
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}
	return serveErr
}
