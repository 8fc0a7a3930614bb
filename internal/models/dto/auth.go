package dto

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
	FullName string `json:"fullName" validate:"max=200"`
	Phone    string `json:"phone" validate:"max=32"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the token bundle returned by register, login and OTP registration.
type LoginResponse struct {
	Token     string   `json:"token"`
	TokenType string   `json:"tokenType"`
	ExpiresIn int64    `json:"expiresIn"`
	UserID    string   `json:"userId"`
	Email     string   `json:"email"`
	FullName  string   `json:"fullName"`
	Phone     string   `json:"phone,omitempty"`
	Roles     []string `json:"roles"`
}

type OtpSendRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type OtpSendResponse struct {
	Email         string `json:"email"`
	ExpiryMinutes int    `json:"expiryMinutes"`
	DemoCode      string `json:"demoCode,omitempty"`
}

// OtpVerifyRequest completes registration when FullName, Phone and Password
// are all present; otherwise it only acknowledges the verified address.
type OtpVerifyRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Code     string `json:"otp" validate:"required"`
	FullName string `json:"fullName" validate:"max=200"`
	Phone    string `json:"phone" validate:"max=32"`
	Password string `json:"password" validate:"max=72"`
}

// HasProfile reports whether the request carries the fields needed to register.
func (r OtpVerifyRequest) HasProfile() bool {
	return r.FullName != "" && r.Phone != "" && r.Password != ""
}

type OtpVerifiedResponse struct {
	Email  string `json:"email"`
	Status string `json:"status"`
}

type UpdateProfileRequest struct {
	FullName string `json:"fullName" validate:"required,max=200"`
	Phone    string `json:"phone" validate:"max=32"`
}
