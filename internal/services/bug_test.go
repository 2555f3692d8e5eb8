package services

import (
	"context"
	"errors"
	"testing"

	"github.com/bugtrackr/apiserver/internal/auth"
	"github.com/bugtrackr/apiserver/internal/store"
	"github.com/bugtrackr/apiserver/types"
)

// bugFixture wires the bug service over the in-memory repositories with
// one project and one account per role, all members of the project.
type bugFixture struct {
	users    *fakeUserRepo
	projects *fakeProjectRepo
	bugs     *fakeBugRepo
	svc      *BugService

	manager auth.Actor
	dev     auth.Actor
	qa      auth.Actor
	project types.Project
}

func newBugFixture(t *testing.T) *bugFixture {
	t.Helper()

	users := newFakeUserRepo()
	projects := newFakeProjectRepo()
	bugs := newFakeBugRepo()

	manager := seedUser(t, users, "manager@example.com", types.RoleManager)
	dev := seedUser(t, users, "dev@example.com", types.RoleDeveloper)
	qa := seedUser(t, users, "qa@example.com", types.RoleQA)

	project, err := projects.Create(context.Background(), types.Project{
		Name:         "Payments",
		ManagerID:    manager.ID,
		DeveloperIDs: []int{dev.ID},
		QAIDs:        []int{qa.ID},
	})
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}

	return &bugFixture{
		users:    users,
		projects: projects,
		bugs:     bugs,
		svc:      NewBugService(bugs, projects, users, nil, nil),
		manager:  mustActor(t, manager),
		dev:      mustActor(t, dev),
		qa:       mustActor(t, qa),
		project:  project,
	}
}

func mustActor(t *testing.T, user types.User) auth.Actor {
	t.Helper()
	actor, err := auth.NewActor(user)
	if err != nil {
		t.Fatalf("actor for %s: %v", user.Email, err)
	}
	return actor
}

func (f *bugFixture) report(t *testing.T, title string) types.Bug {
	t.Helper()
	bug, err := f.svc.Create(context.Background(), f.qa, f.project.ID, CreateBugInput{
		Title:      title,
		Type:       types.BugTypeBug,
		AssignedTo: &f.dev.ID,
	})
	if err != nil {
		t.Fatalf("report bug %q: %v", title, err)
	}
	return bug
}

func (f *bugFixture) setStatus(t *testing.T, bugID int, status types.BugStatus) {
	t.Helper()
	bug, ok := f.bugs.bugs[bugID]
	if !ok {
		t.Fatalf("bug %d not found", bugID)
	}
	bug.Status = status
	f.bugs.bugs[bugID] = bug
}

func TestCreateBugStartsInInitialState(t *testing.T) {
	f := newBugFixture(t)
	bug := f.report(t, "Checkout crashes")

	if bug.Status != types.StatusNew {
		t.Fatalf("status = %q, want %q", bug.Status, types.StatusNew)
	}
	if bug.Locked {
		t.Fatalf("new bug must start unlocked")
	}
	if bug.CreatedBy != f.qa.ID {
		t.Fatalf("CreatedBy = %d, want %d", bug.CreatedBy, f.qa.ID)
	}
	if bug.AssignedTo == nil || *bug.AssignedTo != f.dev.ID {
		t.Fatalf("AssignedTo = %v, want %d", bug.AssignedTo, f.dev.ID)
	}
}

func TestCreateBugDenies(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.manager, f.project.ID, CreateBugInput{Title: "X", Type: types.BugTypeBug}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("manager create: got %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Create(ctx, f.dev, f.project.ID, CreateBugInput{Title: "X", Type: types.BugTypeBug}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("developer create: got %v, want ErrForbidden", err)
	}

	outsider := mustActor(t, seedUser(t, f.users, "qa2@example.com", types.RoleQA))
	if _, err := f.svc.Create(ctx, outsider, f.project.ID, CreateBugInput{Title: "X", Type: types.BugTypeBug}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-member QA create: got %v, want ErrForbidden", err)
	}

	if _, err := f.svc.Create(ctx, auth.Actor{}, f.project.ID, CreateBugInput{Title: "X", Type: types.BugTypeBug}); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("anonymous create: got %v, want ErrNotAuthenticated", err)
	}
}

func TestCreateBugValidation(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.qa, f.project.ID, CreateBugInput{Title: "  ", Type: types.BugTypeBug}); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank title: got %v, want ErrValidation", err)
	}
	if _, err := f.svc.Create(ctx, f.qa, f.project.ID, CreateBugInput{Title: "X", Type: "epic"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad type: got %v, want ErrValidation", err)
	}

	f.report(t, "Checkout crashes")
	if _, err := f.svc.Create(ctx, f.qa, f.project.ID, CreateBugInput{Title: "Checkout crashes", Type: types.BugTypeBug}); !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate title: got %v, want ErrValidation", err)
	}

	// Assignee must be a developer member of the project.
	if _, err := f.svc.Create(ctx, f.qa, f.project.ID, CreateBugInput{Title: "Y", Type: types.BugTypeBug, AssignedTo: &f.manager.ID}); !errors.Is(err, ErrValidation) {
		t.Fatalf("manager as assignee: got %v, want ErrValidation", err)
	}
	stranger := seedUser(t, f.users, "dev2@example.com", types.RoleDeveloper)
	if _, err := f.svc.Create(ctx, f.qa, f.project.ID, CreateBugInput{Title: "Y", Type: types.BugTypeBug, AssignedTo: &stranger.ID}); !errors.Is(err, ErrValidation) {
		t.Fatalf("non-member developer as assignee: got %v, want ErrValidation", err)
	}
}

func TestTransitionFullLifecycle(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.report(t, "Checkout crashes")

	updated, err := f.svc.Transition(ctx, f.dev, bug.ID, types.StatusStarted)
	if err != nil {
		t.Fatalf("new -> started: %v", err)
	}
	if updated.Status != types.StatusStarted {
		t.Fatalf("status = %q after start", updated.Status)
	}

	if _, err := f.svc.Transition(ctx, f.dev, bug.ID, types.StatusPostedToQA); err != nil {
		t.Fatalf("started -> posted_to_qa: %v", err)
	}
	if _, err := f.svc.Transition(ctx, f.qa, bug.ID, types.StatusDoneFromQA); err != nil {
		t.Fatalf("posted_to_qa -> done_from_qa: %v", err)
	}

	updated, err = f.svc.Transition(ctx, f.manager, bug.ID, types.StatusClosed)
	if err != nil {
		t.Fatalf("done_from_qa -> closed: %v", err)
	}
	if updated.Status != types.StatusClosed {
		t.Fatalf("status = %q after close", updated.Status)
	}
}

func TestTransitionRejectsSkippedEdges(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.report(t, "Checkout crashes")

	var transErr *InvalidTransitionError
	if _, err := f.svc.Transition(ctx, f.dev, bug.ID, types.StatusPostedToQA); !errors.As(err, &transErr) {
		t.Fatalf("new -> posted_to_qa: got %v, want InvalidTransitionError", err)
	}
	if transErr.Current != types.StatusNew {
		t.Fatalf("reported current = %q, want %q", transErr.Current, types.StatusNew)
	}
	if f.bugs.bugs[bug.ID].Status != types.StatusNew {
		t.Fatalf("rejected transition must leave the status unchanged")
	}

	f.setStatus(t, bug.ID, types.StatusClosed)
	for _, target := range []types.BugStatus{types.StatusNew, types.StatusStarted, types.StatusDoneFromQA} {
		if _, err := f.svc.Transition(ctx, f.manager, bug.ID, target); !errors.As(err, &transErr) {
			t.Fatalf("closed -> %s: got %v, want InvalidTransitionError", target, err)
		}
	}
}

func TestTransitionRoleGates(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.report(t, "Checkout crashes")

	// Only the assigned developer starts work.
	if _, err := f.svc.Transition(ctx, f.qa, bug.ID, types.StatusStarted); !errors.Is(err, ErrForbidden) {
		t.Fatalf("QA starting work: got %v, want ErrForbidden", err)
	}

	f.setStatus(t, bug.ID, types.StatusPostedToQA)
	if _, err := f.svc.Transition(ctx, f.dev, bug.ID, types.StatusDoneFromQA); !errors.Is(err, ErrForbidden) {
		t.Fatalf("developer approving QA: got %v, want ErrForbidden", err)
	}

	// Closing demands the close permission, which only managers hold.
	f.setStatus(t, bug.ID, types.StatusDoneFromQA)
	if _, err := f.svc.Transition(ctx, f.dev, bug.ID, types.StatusClosed); !errors.Is(err, ErrForbidden) {
		t.Fatalf("developer closing: got %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Transition(ctx, f.qa, bug.ID, types.StatusClosed); !errors.Is(err, ErrForbidden) {
		t.Fatalf("QA closing: got %v, want ErrForbidden", err)
	}
	if f.bugs.bugs[bug.ID].Status != types.StatusDoneFromQA {
		t.Fatalf("denied close must leave the status unchanged")
	}
}

func TestTransitionMembershipGates(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.report(t, "Checkout crashes")

	otherQA := mustActor(t, seedUser(t, f.users, "qa2@example.com", types.RoleQA))
	if _, err := f.svc.Transition(ctx, otherQA, bug.ID, types.StatusStarted); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-member: got %v, want ErrForbidden", err)
	}

	// A developer on the project but not assigned to the bug is denied
	// even though the role would otherwise fit the edge.
	otherDev := seedUser(t, f.users, "dev2@example.com", types.RoleDeveloper)
	project := f.projects.projects[f.project.ID]
	project.DeveloperIDs = append(project.DeveloperIDs, otherDev.ID)
	f.projects.projects[f.project.ID] = project
	if _, err := f.svc.Transition(ctx, mustActor(t, otherDev), bug.ID, types.StatusStarted); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unassigned developer: got %v, want ErrForbidden", err)
	}

	if _, err := f.svc.Transition(ctx, auth.Actor{}, bug.ID, types.StatusStarted); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("anonymous: got %v, want ErrNotAuthenticated", err)
	}
}

func TestTransitionLockedBugFreezesDevelopers(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.report(t, "Checkout crashes")

	locked := f.bugs.bugs[bug.ID]
	locked.Locked = true
	f.bugs.bugs[bug.ID] = locked

	for _, target := range []types.BugStatus{types.StatusStarted, types.StatusPostedToQA, types.StatusClosed} {
		if _, err := f.svc.Transition(ctx, f.dev, bug.ID, target); !errors.Is(err, ErrForbidden) {
			t.Fatalf("locked bug, developer -> %s: got %v, want ErrForbidden", target, err)
		}
	}
	if f.bugs.bugs[bug.ID].Status != types.StatusNew {
		t.Fatalf("locked bug must not move")
	}

	// The lock freezes developers only; QA and manager edges still work.
	f.setStatus(t, bug.ID, types.StatusPostedToQA)
	if _, err := f.svc.Transition(ctx, f.qa, bug.ID, types.StatusDoneFromQA); err != nil {
		t.Fatalf("locked bug, QA approval: %v", err)
	}
	if _, err := f.svc.Transition(ctx, f.manager, bug.ID, types.StatusClosed); err != nil {
		t.Fatalf("locked bug, manager close: %v", err)
	}
}

// racingBugRepo flips the stored status right before the first
// conditional write, standing in for a concurrent transition.
type racingBugRepo struct {
	*fakeBugRepo
	raced bool
}

func (r *racingBugRepo) UpdateStatus(ctx context.Context, id int, from, to types.BugStatus) (types.Bug, error) {
	if !r.raced {
		r.raced = true
		bug := r.bugs[id]
		bug.Status = types.StatusStarted
		r.bugs[id] = bug
	}
	return r.fakeBugRepo.UpdateStatus(ctx, id, from, to)
}

func TestTransitionLostRaceSurfacesAsInvalidTransition(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.report(t, "Checkout crashes")

	racing := &racingBugRepo{fakeBugRepo: f.bugs}
	svc := NewBugService(racing, f.projects, f.users, nil, nil)

	var transErr *InvalidTransitionError
	if _, err := svc.Transition(ctx, f.dev, bug.ID, types.StatusStarted); !errors.As(err, &transErr) {
		t.Fatalf("raced transition: got %v, want InvalidTransitionError", err)
	}
	if transErr.Current != types.StatusStarted {
		t.Fatalf("conflict must report the raced status, got %q", transErr.Current)
	}
}

func TestToggleLock(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.report(t, "Checkout crashes")

	updated, err := f.svc.ToggleLock(ctx, f.qa, bug.ID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !updated.Locked {
		t.Fatalf("expected locked after first toggle")
	}

	updated, err = f.svc.ToggleLock(ctx, f.manager, bug.ID)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if updated.Locked {
		t.Fatalf("expected unlocked after second toggle")
	}

	if _, err := f.svc.ToggleLock(ctx, f.dev, bug.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("developer toggle: got %v, want ErrForbidden", err)
	}
}

func TestToggleLockClosedBug(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.report(t, "Checkout crashes")
	f.setStatus(t, bug.ID, types.StatusClosed)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.ToggleLock(ctx, f.qa, bug.ID); !errors.Is(err, ErrInvalidOperation) {
			t.Fatalf("toggle %d on closed bug: got %v, want ErrInvalidOperation", i+1, err)
		}
	}
	if f.bugs.bugs[bug.ID].Locked {
		t.Fatalf("closed bug's lock flag must stay put")
	}
}

func TestDeleteBug(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	bug := f.report(t, "Checkout crashes")

	if err := f.svc.Delete(ctx, f.qa, bug.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("QA delete: got %v, want ErrForbidden", err)
	}
	if err := f.svc.Delete(ctx, f.manager, bug.ID); err != nil {
		t.Fatalf("manager delete: %v", err)
	}
	if _, err := f.bugs.Get(ctx, bug.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected bug gone, got %v", err)
	}
}

func TestDashboards(t *testing.T) {
	f := newBugFixture(t)
	ctx := context.Background()
	f.report(t, "Checkout crashes")
	f.report(t, "Refund loops forever")

	created, err := f.svc.ListCreated(ctx, f.qa)
	if err != nil {
		t.Fatalf("ListCreated: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("QA dashboard has %d bugs, want 2", len(created))
	}
	if _, err := f.svc.ListCreated(ctx, f.manager); !errors.Is(err, ErrForbidden) {
		t.Fatalf("manager on QA dashboard: got %v, want ErrForbidden", err)
	}

	assigned, err := f.svc.ListAssigned(ctx, f.dev)
	if err != nil {
		t.Fatalf("ListAssigned: %v", err)
	}
	if len(assigned) != 2 {
		t.Fatalf("developer dashboard has %d bugs, want 2", len(assigned))
	}
	if _, err := f.svc.ListAssigned(ctx, f.qa); !errors.Is(err, ErrForbidden) {
		t.Fatalf("QA on developer dashboard: got %v, want ErrForbidden", err)
	}

	listed, err := f.svc.ListForProject(ctx, f.manager, f.project.ID)
	if err != nil {
		t.Fatalf("ListForProject: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("project listing has %d bugs, want 2", len(listed))
	}

	otherManager := mustActor(t, seedUser(t, f.users, "manager2@example.com", types.RoleManager))
	if _, err := f.svc.ListForProject(ctx, otherManager, f.project.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner manager listing: got %v, want ErrForbidden", err)
	}
}
