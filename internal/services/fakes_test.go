package services

import (
	"context"
	"time"

	"github.com/bugtrackr/apiserver/internal/store"
	"github.com/bugtrackr/apiserver/types"
)

// In-memory repositories backing the service tests. They mirror the
// Postgres repositories' contract, including the conditional-write
// semantics of UpdateStatus and SetLocked.

type fakeUserRepo struct {
	users  map[int]types.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int]types.User)}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByEmails(ctx context.Context, emails []string, role types.Role) ([]types.User, error) {
	var out []types.User
	for _, email := range emails {
		for _, user := range r.users {
			if user.Email == email && user.Role == role {
				out = append(out, user)
			}
		}
	}
	return out, nil
}

func (r *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) UpdateThrottle(ctx context.Context, user types.User) error {
	stored, ok := r.users[user.ID]
	if !ok {
		return store.ErrNotFound
	}
	stored.FailedLoginAttempts = user.FailedLoginAttempts
	stored.LockUntil = user.LockUntil
	r.users[user.ID] = stored
	return nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type fakeProjectRepo struct {
	projects map[int]types.Project
	nextID   int
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{projects: make(map[int]types.Project)}
}

func (r *fakeProjectRepo) Get(ctx context.Context, id int) (types.Project, error) {
	project, ok := r.projects[id]
	if !ok {
		return types.Project{}, store.ErrNotFound
	}
	return project, nil
}

func (r *fakeProjectRepo) Create(ctx context.Context, project types.Project) (types.Project, error) {
	r.nextID++
	project.ID = r.nextID
	r.projects[project.ID] = project
	return project, nil
}

func (r *fakeProjectRepo) Update(ctx context.Context, project types.Project) (types.Project, error) {
	if _, ok := r.projects[project.ID]; !ok {
		return types.Project{}, store.ErrNotFound
	}
	r.projects[project.ID] = project
	return project, nil
}

func (r *fakeProjectRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.projects[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.projects, id)
	return nil
}

func (r *fakeProjectRepo) ListByManager(ctx context.Context, managerID int) ([]types.Project, error) {
	var out []types.Project
	for _, project := range r.projects {
		if project.ManagerID == managerID {
			out = append(out, project)
		}
	}
	return out, nil
}

func (r *fakeProjectRepo) ListByDeveloper(ctx context.Context, developerID int) ([]types.Project, error) {
	var out []types.Project
	for _, project := range r.projects {
		if containsID(project.DeveloperIDs, developerID) {
			out = append(out, project)
		}
	}
	return out, nil
}

func (r *fakeProjectRepo) ListByQA(ctx context.Context, qaID int) ([]types.Project, error) {
	var out []types.Project
	for _, project := range r.projects {
		if containsID(project.QAIDs, qaID) {
			out = append(out, project)
		}
	}
	return out, nil
}

type fakeBugRepo struct {
	bugs   map[int]types.Bug
	nextID int
}

func newFakeBugRepo() *fakeBugRepo {
	return &fakeBugRepo{bugs: make(map[int]types.Bug)}
}

func (r *fakeBugRepo) Get(ctx context.Context, id int) (types.Bug, error) {
	bug, ok := r.bugs[id]
	if !ok {
		return types.Bug{}, store.ErrNotFound
	}
	return bug, nil
}

func (r *fakeBugRepo) Create(ctx context.Context, bug types.Bug) (types.Bug, error) {
	for _, existing := range r.bugs {
		if existing.ProjectID == bug.ProjectID && existing.Title == bug.Title {
			return types.Bug{}, store.ErrConflict
		}
	}
	r.nextID++
	bug.ID = r.nextID
	now := time.Now()
	bug.CreatedAt = now
	bug.UpdatedAt = now
	r.bugs[bug.ID] = bug
	return bug, nil
}

func (r *fakeBugRepo) UpdateStatus(ctx context.Context, id int, from, to types.BugStatus) (types.Bug, error) {
	bug, ok := r.bugs[id]
	if !ok || bug.Status != from {
		return types.Bug{}, store.ErrNotFound
	}
	bug.Status = to
	bug.UpdatedAt = time.Now()
	r.bugs[id] = bug
	return bug, nil
}

func (r *fakeBugRepo) SetLocked(ctx context.Context, id int, locked bool) (types.Bug, error) {
	bug, ok := r.bugs[id]
	if !ok || bug.Status == types.StatusClosed {
		return types.Bug{}, store.ErrNotFound
	}
	bug.Locked = locked
	bug.UpdatedAt = time.Now()
	r.bugs[id] = bug
	return bug, nil
}

func (r *fakeBugRepo) SetImage(ctx context.Context, id int, key string) (types.Bug, error) {
	bug, ok := r.bugs[id]
	if !ok {
		return types.Bug{}, store.ErrNotFound
	}
	bug.Image = key
	r.bugs[id] = bug
	return bug, nil
}

func (r *fakeBugRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.bugs[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.bugs, id)
	return nil
}

func (r *fakeBugRepo) ListByProject(ctx context.Context, projectID int) ([]types.Bug, error) {
	var out []types.Bug
	for _, bug := range r.bugs {
		if bug.ProjectID == projectID {
			out = append(out, bug)
		}
	}
	return out, nil
}

func (r *fakeBugRepo) ListByCreator(ctx context.Context, creatorID int) ([]types.Bug, error) {
	var out []types.Bug
	for _, bug := range r.bugs {
		if bug.CreatedBy == creatorID {
			out = append(out, bug)
		}
	}
	return out, nil
}

func (r *fakeBugRepo) ListByAssignee(ctx context.Context, developerID int) ([]types.Bug, error) {
	var out []types.Bug
	for _, bug := range r.bugs {
		if bug.AssignedTo != nil && *bug.AssignedTo == developerID {
			out = append(out, bug)
		}
	}
	return out, nil
}

// fakeHasher avoids real bcrypt work in tests.
type fakeHasher struct{}

func (fakeHasher) Hash(plaintext string) (string, error) {
	return "hashed:" + plaintext, nil
}

func (fakeHasher) Verify(plaintext, digest string) bool {
	return digest == "hashed:"+plaintext
}
