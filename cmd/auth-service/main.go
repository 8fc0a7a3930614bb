package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hongminglow/medicart-identity/internal/app"
	"github.com/hongminglow/medicart-identity/internal/auth"
	"github.com/hongminglow/medicart-identity/internal/config"
	"github.com/hongminglow/medicart-identity/internal/identity"
	"github.com/hongminglow/medicart-identity/internal/otp"
	"github.com/hongminglow/medicart-identity/internal/policy"
	"github.com/hongminglow/medicart-identity/internal/server"
	"github.com/hongminglow/medicart-identity/internal/telemetry"
)

func main() {
	loadLocalEnv()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireDatabase()
	}
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("auth service stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceNameOr("auth-service"), cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	userStore, err := app.OpenUserStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer userStore.Close()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL(), nil)
	passcodes := otp.NewGate(nil, otp.DefaultTTL)
	go passcodes.RunPurger(ctx, cfg.OTPPurgeInterval, logger)

	if cfg.OTPDemoMode {
		logger.Warn("OTP demo mode is on: codes are logged and returned to callers")
	}
	svc := identity.NewService(userStore, tokens, passcodes, logger, identity.Options{
		Sender: otp.LogSender{Logger: logger, RevealCode: cfg.OTPDemoMode},
	})

	if cfg.AdminEmail != "" {
		if _, err := svc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return err
		}
	}

	sec, err := app.NewSecurity(cfg, tokens, policy.AuthServiceRules(), logger)
	if err != nil {
		return err
	}
	srv := server.NewAuthService(cfg, svc, sec, logger)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("auth service listening", zap.String("address", srv.Addr()))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if addr := cfg.GRPCAddress(); addr != "" {
		grpcSrv, err := server.NewGRPC(addr, sec, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := grpcSrv.Serve(ctx); err != nil {
				errCh <- err
			}
		}()
	}

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

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("read .env: %v", err)
	}
}
