package types

import "time"

// User represents a catalog account.
//
// Accounts are created unverified; they become verified only through a
// successful OTP check or a single-use emailed link, and may not log in
// before that.
type User struct {
	// ID is the unique identifier of the account.
	ID int `json:"id" db:"id"`

	// Email is the unique address the account registered with.
	Email string `json:"email" db:"email"`

	// Name is the display name of the account holder.
	Name string `json:"name" db:"name"`

	// PasswordHash is the bcrypt hash of the account password.
	// It is never serialized to clients.
	PasswordHash string `json:"-" db:"password_hash"`

	// Verified indicates the account has proven control of its email.
	Verified bool `json:"verified" db:"verified"`

	// CreatedAt is the timestamp at which the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
