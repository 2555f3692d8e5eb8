package types

// Role names the authorization level of an account. Exactly three roles
// exist and they are fixed at compile time.
type Role string

const (
	RoleManager   Role = "Manager"
	RoleDeveloper Role = "Developer"
	RoleQA        Role = "QA"
)

// Valid reports whether the role is one of the three recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleDeveloper, RoleQA:
		return true
	}
	return false
}

// Permission is an opaque token granting the right to perform one
// category of operation. Permissions are compared by exact match.
type Permission string

const (
	PermCreateProject        Permission = "create_project"
	PermAssignUsers          Permission = "assign_users"
	PermViewAllProjects      Permission = "view_all_projects"
	PermViewBugs             Permission = "view_bugs"
	PermCloseBug             Permission = "close_bug"
	PermFilterProjects       Permission = "filter_projects"
	PermEditProject          Permission = "edit_project"
	PermDeleteProject        Permission = "delete_project"
	PermDeleteBug            Permission = "delete_bug"
	PermViewAssignedProjects Permission = "view_assigned_projects"
	PermViewAssignedBugs     Permission = "view_assigned_bugs"
	PermUpdateBugStatus      Permission = "update_bug_status"
	PermPostToQA             Permission = "post_to_qa"
	PermCreateBug            Permission = "create_bug"
	PermLockBug              Permission = "lock_bug"
	PermDoneFromQA           Permission = "done_from_qa"
)
