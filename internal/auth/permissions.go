package auth

import (
	"errors"

	"github.com/bugtrackr/apiserver/types"
)

// ErrUnknownRole is returned when a role name is not one of the three
// recognized roles.
var ErrUnknownRole = errors.New("unknown role")

// rolePermissions is the closed role → permission-set table. It is built
// once and never mutated; replacing it means replacing the whole map.
var rolePermissions = map[types.Role][]types.Permission{
	types.RoleManager: {
		types.PermCreateProject,
		types.PermAssignUsers,
		types.PermViewAllProjects,
		types.PermViewBugs,
		types.PermCloseBug,
		types.PermFilterProjects,
		types.PermEditProject,
		types.PermDeleteProject,
		types.PermDeleteBug,
		types.PermViewAssignedProjects,
		types.PermLockBug,
	},
	types.RoleDeveloper: {
		types.PermViewAssignedProjects,
		types.PermViewAssignedBugs,
		types.PermUpdateBugStatus,
		types.PermPostToQA,
	},
	types.RoleQA: {
		types.PermViewAssignedProjects,
		types.PermCreateBug,
		types.PermLockBug,
		types.PermDoneFromQA,
	},
}

// PermissionsFor returns the permission set of the named role. The
// returned slice is a copy; callers may not mutate the registry.
func PermissionsFor(role types.Role) ([]types.Permission, error) {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil, ErrUnknownRole
	}
	out := make([]types.Permission, len(perms))
	copy(out, perms)
	return out, nil
}
