package services

import "errors"

// Domain errors surfaced to clients verbatim. Handlers map them to
// HTTP status codes with errors.Is.
var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrNotVerified     = errors.New("email not verified")
	ErrAlreadyVerified = errors.New("email already verified")

	ErrOTPInvalid      = errors.New("invalid OTP")
	ErrOTPExpired      = errors.New("OTP expired")
	ErrTooManyAttempts = errors.New("too many failed attempts, request a new OTP")
	ErrResendTooSoon   = errors.New("please wait before requesting a new OTP")

	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenUsed    = errors.New("token already used")

	ErrForbidden = errors.New("not allowed to modify this product")

	ErrInvalidCategory  = errors.New("invalid category")
	ErrInvalidPrice     = errors.New("price must be non-negative")
	ErrImageRequired    = errors.New("image is required")
	ErrUnsupportedImage = errors.New("image must be PNG, JPEG, or WEBP")
)
