package types

import "time"

// User represents an account in the storefront.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the hex-encoded derived key of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	// Salt is the hex-encoded random salt used when deriving PasswordHash.
	Salt string `json:"-" db:"salt"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
