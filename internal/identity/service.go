// Package identity turns verified credentials into signed tokens.
//
// It owns registration (password or OTP), login, profile reads and
// updates, and the optional administrator bootstrap. Persistence is
// delegated to a storage.UserStore and token minting to a TokenIssuer.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/medicart-identity/internal/auth"
	"github.com/hongminglow/medicart-identity/internal/models"
	"github.com/hongminglow/medicart-identity/internal/otp"
	"github.com/hongminglow/medicart-identity/internal/storage"
)

// TokenType is the scheme clients present tokens with.
const TokenType = "Bearer"

// maxPasswordBytes is the longest input bcrypt will hash.
const maxPasswordBytes = 72

var tracer = otel.Tracer("github.com/hongminglow/medicart-identity/internal/identity")

// TokenIssuer mints a signed token for a stored user.
type TokenIssuer interface {
	Generate(user models.User) (string, auth.Claims, error)
}

// Passcodes is the OTP store the service verifies codes against.
type Passcodes interface {
	Generate(identifier string) (string, error)
	Verify(identifier, code string) error
	TTL() time.Duration
}

// Profile holds the mutable, non-credential fields of an account.
type Profile struct {
	FullName string
	Phone    string
}

// Session is the result of a successful register or login.
type Session struct {
	Token  string
	Claims auth.Claims
	User   models.User
}

// ExpiresIn is the token lifetime in whole seconds.
func (s Session) ExpiresIn() int64 {
	return int64(s.Claims.ExpiresAt.Sub(s.Claims.IssuedAt) / time.Second)
}

// Roles lists the roles granted by the token.
func (s Session) Roles() []string {
	return []string{s.Claims.Role}
}

// Options tune a Service. Zero values pick production defaults.
type Options struct {
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// Sender delivers OTP codes. Nil means codes are only returned to the caller.
	Sender otp.Sender
}

// Service implements registration, login and profile management.
type Service struct {
	store     storage.UserStore
	tokens    TokenIssuer
	passcodes Passcodes
	sender    otp.Sender
	logger    *zap.Logger
	cost      int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewService wires the service to its collaborators.
func NewService(store storage.UserStore, tokens TokenIssuer, passcodes Passcodes, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		store:     store,
		tokens:    tokens,
		passcodes: passcodes,
		sender:    opts.Sender,
		logger:    logger.With(zap.String("component", "identity")),
		cost:      cost,
	}
}

// NormalizeEmail trims and lowercases an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account with the default role and returns a session for it.
func (s *Service) Register(ctx context.Context, email, password string, profile Profile) (Session, error) {
	ctx, span := tracer.Start(ctx, "identity.Register")
	defer span.End()

	user, err := s.createUser(ctx, email, password, profile, models.RoleUser)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Session{}, err
	}
	return s.session(user)
}

// Login checks a password and returns a session. Every failure is reported
// as ErrAuthenticationFailed; the wrapped cause is for logs only.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	ctx, span := tracer.Start(ctx, "identity.Login")
	defer span.End()

	email = NormalizeEmail(email)
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			span.SetStatus(codes.Error, err.Error())
			return Session{}, fmt.Errorf("find user: %w", err)
		}
		// Pay for a comparison anyway so response time does not reveal unknown emails.
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return Session{}, s.loginFailed(email, ErrUserNotFound)
	}

	mismatch := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil
	switch {
	case !user.Active:
		return Session{}, s.loginFailed(email, ErrInactive)
	case mismatch:
		return Session{}, s.loginFailed(email, ErrInvalidCredentials)
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	s.logger.Info("login succeeded", zap.String("subject", email))
	return s.session(user)
}

// SendOtp issues a fresh code for email, replacing any earlier one, and hands
// it to the configured sender. The code is returned so demo deployments can echo it.
func (s *Service) SendOtp(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", ErrInvalidInput
	}
	code, err := s.passcodes.Generate(email)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	if s.sender != nil {
		if err := s.sender.Send(ctx, email, code, s.passcodes.TTL()); err != nil {
			return "", fmt.Errorf("send otp: %w", err)
		}
	}
	return code, nil
}

// OtpTTL reports how long issued codes stay valid.
func (s *Service) OtpTTL() time.Duration {
	return s.passcodes.TTL()
}

// VerifyOtp consumes a code without registering anything.
func (s *Service) VerifyOtp(_ context.Context, email, code string) error {
	email = NormalizeEmail(email)
	switch err := s.passcodes.Verify(email, code); {
	case err == nil:
		return nil
	case errors.Is(err, otp.ErrExpired):
		return fmt.Errorf("%w: %w", ErrOtpExpired, err)
	case errors.Is(err, otp.ErrNotFound), errors.Is(err, otp.ErrInvalid):
		return fmt.Errorf("%w: %w", ErrOtpInvalid, err)
	default:
		return fmt.Errorf("verify otp: %w", err)
	}
}

// RegisterViaOtp verifies code for email and then registers the account.
func (s *Service) RegisterViaOtp(ctx context.Context, email, code, password string, profile Profile) (Session, error) {
	ctx, span := tracer.Start(ctx, "identity.RegisterViaOtp")
	defer span.End()

	if err := checkCredentials(NormalizeEmail(email), password); err != nil {
		return Session{}, err
	}
	if err := s.VerifyOtp(ctx, email, code); err != nil {
		s.logger.Warn("otp registration rejected", zap.String("subject", NormalizeEmail(email)), zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return Session{}, err
	}
	return s.Register(ctx, email, password, profile)
}

// Profile returns the account with the given id.
func (s *Service) Profile(ctx context.Context, id string) (models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.User{}, ErrNotFound
	}
	return s.lookup(s.store.FindByID(ctx, id))
}

// ProfileByEmail returns the account registered under email.
func (s *Service) ProfileByEmail(ctx context.Context, email string) (models.User, error) {
	return s.lookup(s.store.FindByEmail(ctx, NormalizeEmail(email)))
}

// UpdateProfile changes the profile of account id. Only the account owner,
// identified by subject, may do so.
func (s *Service) UpdateProfile(ctx context.Context, subject, id string, profile Profile) (models.User, error) {
	user, err := s.Profile(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if user.Email != NormalizeEmail(subject) {
		s.logger.Warn("profile update refused",
			zap.String("subject", subject),
			zap.String("target_id", id))
		return models.User{}, ErrForbidden
	}
	return s.lookup(s.store.UpdateProfile(ctx, id, strings.TrimSpace(profile.FullName), strings.TrimSpace(profile.Phone)))
}

// EnsureAdmin makes sure email exists and holds the administrator role.
// An existing account keeps its password.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.store.FindByEmail(ctx, NormalizeEmail(email))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		created, err := s.createUser(ctx, email, password, Profile{FullName: "Administrator"}, models.RoleAdmin)
		if err != nil {
			return models.User{}, err
		}
		s.logger.Info("administrator created", zap.String("subject", created.Email))
		return created, nil
	case err != nil:
		return models.User{}, fmt.Errorf("find admin: %w", err)
	}

	if user.Role == models.RoleAdmin {
		return user, nil
	}
	if err := s.store.SetRole(ctx, user.ID, models.RoleAdmin); err != nil {
		return models.User{}, fmt.Errorf("promote admin: %w", err)
	}
	user.Role = models.RoleAdmin
	s.logger.Info("administrator promoted", zap.String("subject", user.Email))
	return user, nil
}

func (s *Service) createUser(ctx context.Context, email, password string, profile Profile, role string) (models.User, error) {
	email = NormalizeEmail(email)
	if err := checkCredentials(email, password); err != nil {
		return models.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.store.CreateUser(ctx, models.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(profile.FullName),
		Phone:        strings.TrimSpace(profile.Phone),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return models.User{}, ErrAlreadyExists
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func checkCredentials(email, password string) error {
	if email == "" || password == "" || len(password) > maxPasswordBytes {
		return ErrInvalidInput
	}
	return nil
}

func (s *Service) session(user models.User) (Session, error) {
	token, claims, err := s.tokens.Generate(user)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Token: token, Claims: claims, User: user}, nil
}

func (s *Service) loginFailed(email string, cause error) error {
	s.logger.Warn("login failed",
		zap.String("subject", email),
		zap.String("reason", cause.Error()))
	return &AuthenticationError{cause: cause}
}

func (s *Service) lookup(user models.User, err error) (models.User, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("medicart-dummy-password"), s.cost)
	})
	return s.dummyHash
}
