package services

import (
	"errors"
	"fmt"

	"github.com/bugtrackr/apiserver/types"
)

// Sentinel errors for the engine's failure kinds. Handlers translate
// them to HTTP statuses with errors.Is; nothing is retried internally.
var (
	// ErrNotAuthenticated means no actor was presented at all. It is
	// deliberately distinct from ErrForbidden.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrForbidden means the actor is authenticated but not allowed to
	// perform the operation: missing permission, wrong role for a
	// transition, not a project member, or the bug is locked.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredentials is returned for both an unknown email and a
	// wrong password, so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountLocked means the account's lockout window is open; the
	// password is not even checked.
	ErrAccountLocked = errors.New("account temporarily locked")

	// ErrInvalidOperation is returned for operations that are never
	// valid in the record's current state, such as toggling the lock of
	// a closed bug.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrValidation marks rejected input. Wrapped errors carry detail.
	ErrValidation = errors.New("validation failed")
)

// InvalidTransitionError reports a status-transition request outside the
// lifecycle's edges, naming the current state and the allowed
// destinations.
type InvalidTransitionError struct {
	Current   types.BugStatus
	Requested types.BugStatus
	Allowed   []types.BugStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q (allowed: %v)", e.Current, e.Requested, e.Allowed)
}
