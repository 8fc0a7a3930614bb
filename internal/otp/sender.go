package otp

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sender delivers a generated code to the owner of identifier.
type Sender interface {
	Send(ctx context.Context, identifier, code string, ttl time.Duration) error
}

// LogSender stands in for a real delivery channel by writing to the log.
// The code itself is only logged when RevealCode is set (demo mode).
type LogSender struct {
	Logger     *zap.Logger
	RevealCode bool
}

// Send records that a code was issued.
func (s LogSender) Send(_ context.Context, identifier, code string, ttl time.Duration) error {
	fields := []zap.Field{
		zap.String("email", identifier),
		zap.Duration("ttl", ttl),
	}
	if s.RevealCode {
		s.Logger.Warn("otp issued (demo mode, not delivered)", append(fields, zap.String("code", code))...)
		return nil
	}
	s.Logger.Info("otp issued", fields...)
	return nil
}
