package services

import (
	"fmt"

	"github.com/bugtrackr/apiserver/internal/auth"
	"github.com/bugtrackr/apiserver/types"
)

// IsMember reports whether the actor belongs to the project in the
// capacity of their role: managers must own the project, developers and
// QA must appear in the corresponding membership set. Unknown roles and
// missing projects fail closed.
func IsMember(actor auth.Actor, project types.Project) bool {
	if !actor.Authenticated() || project.ID == 0 {
		return false
	}
	switch actor.Role {
	case types.RoleManager:
		return project.ManagerID == actor.ID
	case types.RoleDeveloper:
		return containsID(project.DeveloperIDs, actor.ID)
	case types.RoleQA:
		return containsID(project.QAIDs, actor.ID)
	}
	return false
}

// requirePerms translates an authorization decision into the engine's
// error taxonomy, keeping the two deny reasons distinct.
func requirePerms(actor auth.Actor, required ...types.Permission) error {
	decision := auth.Authorize(actor, required...)
	if decision.Allowed {
		return nil
	}
	if decision.Reason == auth.DenyNotAuthenticated {
		return ErrNotAuthenticated
	}
	return fmt.Errorf("%w: missing permission %v", ErrForbidden, decision.Missing)
}

func containsID(ids []int, id int) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
