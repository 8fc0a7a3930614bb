package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hongminglow/medicart-identity/internal/clock"
	"github.com/hongminglow/medicart-identity/internal/models"
)

// SigningAlgorithm is the only algorithm tokens are signed or accepted with.
const SigningAlgorithm = "HS256"

var (
	// ErrMalformed indicates the token cannot be split into header, payload and signature.
	ErrMalformed = errors.New("token is malformed")
	// ErrSignatureInvalid indicates the signature does not match or the algorithm is not HS256.
	ErrSignatureInvalid = errors.New("token signature is invalid")
	// ErrExpired indicates the current time is at or past the exp claim.
	ErrExpired = errors.New("token is expired")
	// ErrRoleMissing indicates a verified token that carries no scope claim.
	ErrRoleMissing = errors.New("token has no role claim")
)

// Claims is the verified content of an identity token.
type Claims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// TokenManager issues and verifies HMAC-signed JWTs with a shared secret.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clock.Clock
	parser *jwt.Parser
}

// NewTokenManager creates a manager with the provided secret, issuer, and lifetime.
// A nil clock means wall-clock time.
func NewTokenManager(secret, issuer string, ttl time.Duration, clk clock.Clock) *TokenManager {
	if clk == nil {
		clk = clock.Real()
	}
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		clock:  clk,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{SigningAlgorithm}),
			jwt.WithExpirationRequired(),
			jwt.WithStrictDecoding(),
			jwt.WithTimeFunc(clk.Now),
		),
	}
}

// TTL reports the lifetime given to tokens minted by Generate.
func (t *TokenManager) TTL() time.Duration {
	return t.ttl
}

// Generate issues a token for the user's email and role, valid from now for the configured TTL.
func (t *TokenManager) Generate(user models.User) (string, Claims, error) {
	return t.Issue(user.Email, user.Role, t.clock.Now(), t.ttl)
}

// Issue signs a token for subject and role. iat and exp are carried with
// second precision, so issuedAt is truncated to the second first. Returned
// times are in UTC, as are those from Verify.
func (t *TokenManager) Issue(subject, role string, issuedAt time.Time, ttl time.Duration) (string, Claims, error) {
	if strings.TrimSpace(subject) == "" {
		return "", Claims{}, errors.New("token subject is required")
	}
	if ttl <= 0 {
		return "", Claims{}, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	iat := issuedAt.UTC().Truncate(time.Second)
	exp := iat.Add(ttl)
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Scope: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, Claims{Subject: subject, Role: role, IssuedAt: iat, ExpiresAt: exp}, nil
}

// Verify checks the signature with the pinned algorithm, then the expiry, and
// returns the token's claims. It does not require the role to be present;
// callers that establish identity must check Claims.Role themselves.
func (t *TokenManager) Verify(token string) (Claims, error) {
	switch n := strings.Count(token, "."); {
	case n < 2:
		return Claims{}, ErrMalformed
	case n > 2:
		// A dot inside the signature segment leaves header and payload intact.
		head, payload, sig := splitSigned(token)
		if _, _, err := t.parser.ParseUnverified(head+"."+payload+".", &tokenClaims{}); err == nil && sig != "" {
			return Claims{}, fmt.Errorf("%w: unexpected separator in signature", ErrSignatureInvalid)
		}
		return Claims{}, ErrMalformed
	}
	var parsed tokenClaims
	_, err := t.parser.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return Claims{}, t.mapError(token, err)
	}
	claims := Claims{
		Subject: parsed.Subject,
		Role:    parsed.Scope,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time.UTC()
	}
	return claims, nil
}

func splitSigned(token string) (head, payload, sig string) {
	head, rest, _ := strings.Cut(token, ".")
	payload, sig, _ = strings.Cut(rest, ".")
	return head, payload, sig
}

func (t *TokenManager) mapError(token string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		// A header and payload that decode cleanly mean the undecodable part
		// was the signature segment.
		if _, _, uerr := t.parser.ParseUnverified(token, &tokenClaims{}); uerr == nil {
			return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
