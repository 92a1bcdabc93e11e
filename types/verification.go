package types

import "time"

// OTPChallenge is the server-held one-time-code challenge for an email
// address. At most one live challenge exists per email; issuing a new
// code replaces the previous one.
type OTPChallenge struct {
	// Email is the address the code was sent to.
	Email string `json:"email" db:"email"`

	// Code is the 6-digit numeric one-time code.
	Code string `json:"-" db:"code"`

	// ExpiresAt is when the code stops being accepted.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// LastSentAt is when the code was last emailed. Resends are
	// rejected until the cooldown since this instant has elapsed.
	LastSentAt time.Time `json:"last_sent_at" db:"last_sent_at"`

	// Attempts counts failed verification attempts against this code.
	Attempts int `json:"attempts" db:"attempts"`
}

// TokenPurpose distinguishes the flows a verification token can serve.
type TokenPurpose string

// Supported token purposes.
const (
	TokenPurposeVerifyEmail   TokenPurpose = "verify_email"
	TokenPurposeResetPassword TokenPurpose = "reset_password"
)

// VerificationToken is a single-use opaque token emailed to a user,
// used for link-based email verification and password resets. Only the
// SHA-256 hash of the token is stored.
type VerificationToken struct {
	// ID is the unique identifier of the token row.
	ID string `json:"id" db:"id"`

	// UserID is the account the token was issued for.
	UserID int `json:"user_id" db:"user_id"`

	// TokenHash is the hex-encoded SHA-256 hash of the opaque token.
	TokenHash string `json:"-" db:"token_hash"`

	// Purpose is the flow the token belongs to.
	Purpose TokenPurpose `json:"purpose" db:"purpose"`

	// ExpiresAt is when the token stops being accepted.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// UsedAt is set the first time the token is consumed. A token with
	// UsedAt set is never accepted again.
	UsedAt *time.Time `json:"used_at" db:"used_at"`

	// CreatedAt is when the token was issued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
