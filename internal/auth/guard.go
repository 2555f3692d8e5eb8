package auth

import "github.com/bugtrackr/apiserver/types"

// Actor is an immutable snapshot of an authenticated account and its
// permissions, built when a request is authenticated. Every authorization
// decision is a pure function of an Actor value; nothing is read from
// ambient session state.
type Actor struct {
	ID          int                `json:"id"`
	Email       string             `json:"email"`
	Name        string             `json:"name"`
	Role        types.Role         `json:"role"`
	Permissions []types.Permission `json:"permissions"`
}

// NewActor builds an Actor from an account, resolving the role's
// permission set from the registry.
func NewActor(user types.User) (Actor, error) {
	perms, err := PermissionsFor(user.Role)
	if err != nil {
		return Actor{}, err
	}
	return Actor{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        user.Role,
		Permissions: perms,
	}, nil
}

// Authenticated reports whether the actor represents a logged-in account.
// The zero Actor is the unauthenticated actor.
func (a Actor) Authenticated() bool {
	return a.ID > 0
}

// Has reports whether the actor holds the given permission.
func (a Actor) Has(perm types.Permission) bool {
	for _, p := range a.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// DenyReason distinguishes why an authorization check failed.
type DenyReason int

const (
	DenyNone DenyReason = iota
	DenyNotAuthenticated
	DenyInsufficientPermission
)

// Decision is the outcome of an authorization check. A deny is a value,
// not an error; callers surface it as an access-denied outcome.
type Decision struct {
	Allowed bool
	Reason  DenyReason

	// Missing lists the required permissions the actor does not hold.
	// Empty unless Reason is DenyInsufficientPermission.
	Missing []types.Permission
}

// Authorize checks that the actor holds every one of the required
// permissions. An unauthenticated actor is denied before any permission
// is inspected, with a reason distinct from an insufficient-permission
// deny.
func Authorize(actor Actor, required ...types.Permission) Decision {
	if !actor.Authenticated() {
		return Decision{Reason: DenyNotAuthenticated}
	}

	var missing []types.Permission
	for _, perm := range required {
		if !actor.Has(perm) {
			missing = append(missing, perm)
		}
	}
	if len(missing) > 0 {
		return Decision{Reason: DenyInsufficientPermission, Missing: missing}
	}
	return Decision{Allowed: true}
}
