package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/bugtrackr/apiserver/internal/auth"
	"github.com/bugtrackr/apiserver/types"
)

// ProjectRepository defines persistence operations for projects.
type ProjectRepository interface {
	Get(ctx context.Context, id int) (types.Project, error)
	Create(ctx context.Context, project types.Project) (types.Project, error)
	Update(ctx context.Context, project types.Project) (types.Project, error)
	Delete(ctx context.Context, id int) error
	ListByManager(ctx context.Context, managerID int) ([]types.Project, error)
	ListByDeveloper(ctx context.Context, developerID int) ([]types.Project, error)
	ListByQA(ctx context.Context, qaID int) ([]types.Project, error)
}

// ProjectService encapsulates project use-cases: creation, membership
// management and the project-scoped read queries.
type ProjectService struct {
	repo  ProjectRepository
	users *UserService
}

func NewProjectService(repo ProjectRepository, users *UserService) *ProjectService {
	return &ProjectService{repo: repo, users: users}
}

// Create makes a new project owned by the acting manager. The developer
// and QA member lists are given as emails; every email must resolve to
// an existing account of the matching role.
func (s *ProjectService) Create(ctx context.Context, actor auth.Actor, name string, developerEmails, qaEmails []string) (types.Project, error) {
	if err := requirePerms(actor, types.PermCreateProject); err != nil {
		return types.Project{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return types.Project{}, fmt.Errorf("%w: project name is required", ErrValidation)
	}

	developerIDs, qaIDs, err := s.resolveMembership(ctx, developerEmails, qaEmails)
	if err != nil {
		return types.Project{}, err
	}

	return s.repo.Create(ctx, types.Project{
		Name:         name,
		ManagerID:    actor.ID,
		DeveloperIDs: developerIDs,
		QAIDs:        qaIDs,
	})
}

// UpdateMembers replaces a project's developer and QA membership sets.
// Only the owning manager may do this.
func (s *ProjectService) UpdateMembers(ctx context.Context, actor auth.Actor, projectID int, developerEmails, qaEmails []string) (types.Project, error) {
	if err := requirePerms(actor, types.PermEditProject); err != nil {
		return types.Project{}, err
	}

	project, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return types.Project{}, err
	}
	if !IsMember(actor, project) {
		return types.Project{}, fmt.Errorf("%w: project not owned by you", ErrForbidden)
	}

	developerIDs, qaIDs, err := s.resolveMembership(ctx, developerEmails, qaEmails)
	if err != nil {
		return types.Project{}, err
	}

	project.DeveloperIDs = developerIDs
	project.QAIDs = qaIDs
	return s.repo.Update(ctx, project)
}

// Delete removes a project. Bugs belonging to it are cascaded away by
// the storage layer.
func (s *ProjectService) Delete(ctx context.Context, actor auth.Actor, projectID int) error {
	if err := requirePerms(actor, types.PermDeleteProject); err != nil {
		return err
	}

	project, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if !IsMember(actor, project) {
		return fmt.Errorf("%w: project not owned by you", ErrForbidden)
	}

	return s.repo.Delete(ctx, projectID)
}

// ListForActor returns the projects visible to the actor: owned projects
// for a manager, assigned projects for developers and QA.
func (s *ProjectService) ListForActor(ctx context.Context, actor auth.Actor) ([]types.Project, error) {
	switch actor.Role {
	case types.RoleManager:
		if err := requirePerms(actor, types.PermViewAllProjects); err != nil {
			return nil, err
		}
		return s.repo.ListByManager(ctx, actor.ID)
	case types.RoleDeveloper:
		if err := requirePerms(actor, types.PermViewAssignedProjects); err != nil {
			return nil, err
		}
		return s.repo.ListByDeveloper(ctx, actor.ID)
	case types.RoleQA:
		if err := requirePerms(actor, types.PermViewAssignedProjects); err != nil {
			return nil, err
		}
		return s.repo.ListByQA(ctx, actor.ID)
	}
	if !actor.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	return nil, ErrForbidden
}

// Developers lists a project's developer members. Visible to the owning
// manager and to QA assigned to the project.
func (s *ProjectService) Developers(ctx context.Context, actor auth.Actor, projectID int) ([]types.User, error) {
	if err := requirePerms(actor, types.PermViewAssignedProjects); err != nil {
		return nil, err
	}

	project, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if actor.Role == types.RoleDeveloper || !IsMember(actor, project) {
		return nil, fmt.Errorf("%w: not authorized to view this project's developers", ErrForbidden)
	}

	developers := make([]types.User, 0, len(project.DeveloperIDs))
	for _, id := range project.DeveloperIDs {
		user, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		developers = append(developers, user)
	}
	return developers, nil
}

func (s *ProjectService) resolveMembership(ctx context.Context, developerEmails, qaEmails []string) (developerIDs, qaIDs []int, err error) {
	developers, err := s.users.ResolveMembers(ctx, developerEmails, types.RoleDeveloper)
	if err != nil {
		return nil, nil, err
	}
	qas, err := s.users.ResolveMembers(ctx, qaEmails, types.RoleQA)
	if err != nil {
		return nil, nil, err
	}

	developerIDs = make([]int, 0, len(developers))
	for _, dev := range developers {
		developerIDs = append(developerIDs, dev.ID)
	}
	qaIDs = make([]int, 0, len(qas))
	for _, qa := range qas {
		qaIDs = append(qaIDs, qa.ID)
	}
	return developerIDs, qaIDs, nil
}
