package identity

import "errors"

var (
	// ErrAlreadyExists means the email is already registered.
	ErrAlreadyExists = errors.New("user already exists")
	// ErrAuthenticationFailed is the only login failure callers should act on.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrUserNotFound, ErrInactive and ErrInvalidCredentials are login causes
	// kept for diagnostics. They are always wrapped in an AuthenticationError.
	ErrUserNotFound       = errors.New("no account for email")
	ErrInactive           = errors.New("account is inactive")
	ErrInvalidCredentials = errors.New("password does not match")

	ErrOtpInvalid = errors.New("invalid otp")
	ErrOtpExpired = errors.New("otp expired")

	ErrNotFound     = errors.New("user not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("email and password are required; password must be at most 72 bytes")
)

// AuthenticationError hides the reason a login failed behind ErrAuthenticationFailed.
type AuthenticationError struct {
	cause error
}

func (e *AuthenticationError) Error() string {
	return ErrAuthenticationFailed.Error()
}

// Is reports a match for ErrAuthenticationFailed and for the hidden cause.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthenticationFailed || target == e.cause
}

// Cause returns the internal reason for logging.
func (e *AuthenticationError) Cause() error {
	return e.cause
}
