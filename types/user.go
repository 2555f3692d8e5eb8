package types

import "time"

// User represents an account in the system.
// It contains identity, role, and login-throttling metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's email address, unique across accounts.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Role is the user's role within the system. Each account has
	// exactly one role; its permission set comes from the registry.
	Role Role `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// FailedLoginAttempts counts consecutive failed authentication
	// attempts since the last success.
	FailedLoginAttempts int `json:"-" db:"failed_login_attempts"`

	// LockUntil, when set, suspends authentication attempts until the
	// given instant. It is cleared on any successful authentication.
	LockUntil *time.Time `json:"-" db:"lock_until"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
