package auth

import (
	"time"

	"github.com/bugtrackr/apiserver/types"
)

const (
	// MaxFailedAttempts is the number of consecutive failed logins that
	// triggers a lockout.
	MaxFailedAttempts = 5

	// LockoutDuration is how long authentication stays suspended once a
	// lockout triggers.
	LockoutDuration = 15 * time.Minute
)

// IsLockedOut reports whether the account's lockout window is still open
// at the given instant.
func IsLockedOut(user types.User, now time.Time) bool {
	return user.LockUntil != nil && now.Before(*user.LockUntil)
}

// RecordFailure registers one failed authentication attempt on the
// account, opening the lockout window once the threshold is reached.
// The caller is responsible for persisting the mutated record.
func RecordFailure(user *types.User, now time.Time) {
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= MaxFailedAttempts {
		until := now.Add(LockoutDuration)
		user.LockUntil = &until
	}
}

// RecordSuccess clears the failure counter and any lockout window.
// The caller persists the record.
func RecordSuccess(user *types.User) {
	user.FailedLoginAttempts = 0
	user.LockUntil = nil
}
