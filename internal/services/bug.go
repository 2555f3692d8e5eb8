package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/bugtrackr/apiserver/internal/auth"
	"github.com/bugtrackr/apiserver/internal/notify"
	"github.com/bugtrackr/apiserver/internal/storage"
	"github.com/bugtrackr/apiserver/internal/store"
	"github.com/bugtrackr/apiserver/types"
)

// MaxImageBytes caps bug image attachments at 5 MB.
const MaxImageBytes = 5 << 20

// transitions is the lifecycle edge table: current status → allowed
// destination statuses. Closed is terminal.
var transitions = map[types.BugStatus][]types.BugStatus{
	types.StatusNew:        {types.StatusStarted},
	types.StatusStarted:    {types.StatusPostedToQA},
	types.StatusPostedToQA: {types.StatusDoneFromQA},
	types.StatusDoneFromQA: {types.StatusClosed},
	types.StatusClosed:     {},
}

// transitionRole names the role that may drive a bug into each
// destination status. StatusClosed is absent on purpose: closing is
// gated on the close_bug permission, not on a fixed role.
var transitionRole = map[types.BugStatus]types.Role{
	types.StatusStarted:    types.RoleDeveloper,
	types.StatusPostedToQA: types.RoleDeveloper,
	types.StatusDoneFromQA: types.RoleQA,
}

// BugRepository defines persistence operations for bugs.
type BugRepository interface {
	Get(ctx context.Context, id int) (types.Bug, error)
	Create(ctx context.Context, bug types.Bug) (types.Bug, error)
	UpdateStatus(ctx context.Context, id int, from, to types.BugStatus) (types.Bug, error)
	SetLocked(ctx context.Context, id int, locked bool) (types.Bug, error)
	SetImage(ctx context.Context, id int, key string) (types.Bug, error)
	Delete(ctx context.Context, id int) error
	ListByProject(ctx context.Context, projectID int) ([]types.Bug, error)
	ListByCreator(ctx context.Context, creatorID int) ([]types.Bug, error)
	ListByAssignee(ctx context.Context, developerID int) ([]types.Bug, error)
}

// BugService encapsulates the bug lifecycle: creation, status
// transitions, the lock flag, image attachments and the dashboards.
type BugService struct {
	repo        BugRepository
	projects    ProjectRepository
	users       UserRepository
	attachments *storage.Attachments
	notifier    notify.Notifier
	clock       func() time.Time
}

func NewBugService(repo BugRepository, projects ProjectRepository, users UserRepository, attachments *storage.Attachments, notifier notify.Notifier) *BugService {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &BugService{
		repo:        repo,
		projects:    projects,
		users:       users,
		attachments: attachments,
		notifier:    notifier,
		clock:       time.Now,
	}
}

// CreateBugInput carries the caller-supplied fields of a new bug. Status
// and lock state are not caller-overridable.
type CreateBugInput struct {
	Title       string
	Description string
	Deadline    *time.Time
	Type        types.BugType
	AssignedTo  *int
}

// Create reports a new bug in a project. The actor must be a QA member
// of the project; the bug starts unlocked in the initial status.
func (s *BugService) Create(ctx context.Context, actor auth.Actor, projectID int, input CreateBugInput) (types.Bug, error) {
	if err := requirePerms(actor, types.PermCreateBug); err != nil {
		return types.Bug{}, err
	}

	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return types.Bug{}, err
	}
	if !IsMember(actor, project) {
		return types.Bug{}, fmt.Errorf("%w: not authorized to create bugs in this project", ErrForbidden)
	}

	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return types.Bug{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !input.Type.Valid() {
		return types.Bug{}, fmt.Errorf("%w: type must be %q or %q", ErrValidation, types.BugTypeBug, types.BugTypeFeature)
	}

	if input.AssignedTo != nil {
		if err := s.validateAssignee(ctx, *input.AssignedTo, project); err != nil {
			return types.Bug{}, err
		}
	}

	bug, err := s.repo.Create(ctx, types.Bug{
		ProjectID:   project.ID,
		Title:       input.Title,
		Description: input.Description,
		Deadline:    input.Deadline,
		Type:        input.Type,
		Status:      types.StatusNew,
		AssignedTo:  input.AssignedTo,
		CreatedBy:   actor.ID,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Bug{}, fmt.Errorf("%w: a bug with this title already exists in the project", ErrValidation)
		}
		return types.Bug{}, err
	}

	s.publish(ctx, notify.Event{
		Kind:      notify.KindBugCreated,
		BugID:     bug.ID,
		ProjectID: bug.ProjectID,
		ActorID:   actor.ID,
		Status:    bug.Status,
	})
	return bug, nil
}

// Transition moves a bug along one edge of the lifecycle. The rules are
// evaluated in a fixed order: existence, project membership, the lock
// flag, the edge table, the role required for the edge, and finally the
// close_bug permission for the terminal edge. The status write is
// conditional on the status the rules were evaluated against, so a
// concurrent transition surfaces as an invalid transition instead of a
// lost update.
func (s *BugService) Transition(ctx context.Context, actor auth.Actor, bugID int, target types.BugStatus) (types.Bug, error) {
	if !actor.Authenticated() {
		return types.Bug{}, ErrNotAuthenticated
	}

	bug, err := s.repo.Get(ctx, bugID)
	if err != nil {
		return types.Bug{}, err
	}

	if err := s.requireMembership(ctx, actor, bug); err != nil {
		return types.Bug{}, err
	}

	if bug.Locked && actor.Role == types.RoleDeveloper {
		return types.Bug{}, fmt.Errorf("%w: bug is locked", ErrForbidden)
	}

	allowed := transitions[bug.Status]
	if !containsStatus(allowed, target) {
		return types.Bug{}, &InvalidTransitionError{Current: bug.Status, Requested: target, Allowed: allowed}
	}

	if required, ok := transitionRole[target]; ok && actor.Role != required {
		return types.Bug{}, fmt.Errorf("%w: wrong role for transition to %q", ErrForbidden, target)
	}

	if target == types.StatusClosed {
		// Redundant with the edge table, kept as an explicit guard on
		// the terminal edge.
		if bug.Status != types.StatusDoneFromQA {
			return types.Bug{}, &InvalidTransitionError{Current: bug.Status, Requested: target, Allowed: allowed}
		}
		if err := requirePerms(actor, types.PermCloseBug); err != nil {
			return types.Bug{}, err
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, bug.ID, bug.Status, target)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Bug{}, s.transitionConflict(ctx, bug.ID, target)
		}
		return types.Bug{}, err
	}

	s.publish(ctx, notify.Event{
		Kind:      notify.KindBugStatusChanged,
		BugID:     updated.ID,
		ProjectID: updated.ProjectID,
		ActorID:   actor.ID,
		Status:    updated.Status,
	})
	return updated, nil
}

// ToggleLock flips the lock flag freezing developer-driven progression.
// Closed bugs reject the toggle every time.
func (s *BugService) ToggleLock(ctx context.Context, actor auth.Actor, bugID int) (types.Bug, error) {
	if err := requirePerms(actor, types.PermLockBug); err != nil {
		return types.Bug{}, err
	}

	bug, err := s.repo.Get(ctx, bugID)
	if err != nil {
		return types.Bug{}, err
	}
	if err := s.requireMembership(ctx, actor, bug); err != nil {
		return types.Bug{}, err
	}
	if bug.Status == types.StatusClosed {
		return types.Bug{}, fmt.Errorf("%w: cannot toggle lock on a closed bug", ErrInvalidOperation)
	}

	updated, err := s.repo.SetLocked(ctx, bug.ID, !bug.Locked)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Either deleted or closed since we read it.
			if _, getErr := s.repo.Get(ctx, bug.ID); getErr != nil {
				return types.Bug{}, getErr
			}
			return types.Bug{}, fmt.Errorf("%w: cannot toggle lock on a closed bug", ErrInvalidOperation)
		}
		return types.Bug{}, err
	}

	s.publish(ctx, notify.Event{
		Kind:      notify.KindBugLockToggled,
		BugID:     updated.ID,
		ProjectID: updated.ProjectID,
		ActorID:   actor.ID,
		Status:    updated.Status,
		Locked:    updated.Locked,
	})
	return updated, nil
}

// Delete removes a bug and its attachment, if any.
func (s *BugService) Delete(ctx context.Context, actor auth.Actor, bugID int) error {
	if err := requirePerms(actor, types.PermDeleteBug); err != nil {
		return err
	}

	bug, err := s.repo.Get(ctx, bugID)
	if err != nil {
		return err
	}
	if err := s.requireMembership(ctx, actor, bug); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, bug.ID); err != nil {
		return err
	}

	if bug.Image != "" && s.attachments != nil {
		if err := s.attachments.Remove(ctx, bug.Image); err != nil {
			log.Printf("bug %d: remove attachment %q: %v", bug.ID, bug.Image, err)
		}
	}

	s.publish(ctx, notify.Event{
		Kind:      notify.KindBugDeleted,
		BugID:     bug.ID,
		ProjectID: bug.ProjectID,
		ActorID:   actor.ID,
	})
	return nil
}

// Get returns a bug to any member of its project.
func (s *BugService) Get(ctx context.Context, actor auth.Actor, bugID int) (types.Bug, error) {
	if !actor.Authenticated() {
		return types.Bug{}, ErrNotAuthenticated
	}
	bug, err := s.repo.Get(ctx, bugID)
	if err != nil {
		return types.Bug{}, err
	}
	if err := s.requireMembership(ctx, actor, bug); err != nil {
		return types.Bug{}, err
	}
	return bug, nil
}

// AttachImage stores a PNG or GIF screenshot for a bug the acting QA
// reported and records its object key on the bug.
func (s *BugService) AttachImage(ctx context.Context, actor auth.Actor, bugID int, filename string, data []byte) (types.Bug, error) {
	if s.attachments == nil {
		return types.Bug{}, fmt.Errorf("%w: attachment storage is not configured", ErrInvalidOperation)
	}

	bug, err := s.Get(ctx, actor, bugID)
	if err != nil {
		return types.Bug{}, err
	}
	if bug.CreatedBy != actor.ID {
		return types.Bug{}, fmt.Errorf("%w: only the reporting QA may attach an image", ErrForbidden)
	}

	contentType, err := imageContentType(filename)
	if err != nil {
		return types.Bug{}, err
	}
	if len(data) > MaxImageBytes {
		return types.Bug{}, fmt.Errorf("%w: image exceeds %d bytes", ErrValidation, MaxImageBytes)
	}

	key := storage.AttachmentKey(bug.ID, filename)
	if err := s.attachments.Put(ctx, key, data, contentType); err != nil {
		return types.Bug{}, err
	}

	updated, err := s.repo.SetImage(ctx, bug.ID, key)
	if err != nil {
		return types.Bug{}, err
	}
	return updated, nil
}

// OpenImage streams a bug's attachment back to a project member.
func (s *BugService) OpenImage(ctx context.Context, actor auth.Actor, bugID int) (io.ReadCloser, string, error) {
	if s.attachments == nil {
		return nil, "", fmt.Errorf("%w: attachment storage is not configured", ErrInvalidOperation)
	}

	bug, err := s.Get(ctx, actor, bugID)
	if err != nil {
		return nil, "", err
	}
	if bug.Image == "" {
		return nil, "", store.ErrNotFound
	}

	contentType, err := imageContentType(bug.Image)
	if err != nil {
		contentType = "application/octet-stream"
	}
	reader, err := s.attachments.Open(ctx, bug.Image)
	if err != nil {
		return nil, "", err
	}
	return reader, contentType, nil
}

// ListForProject returns a project's bugs to its owning manager.
func (s *BugService) ListForProject(ctx context.Context, actor auth.Actor, projectID int) ([]types.Bug, error) {
	if err := requirePerms(actor, types.PermViewBugs); err != nil {
		return nil, err
	}
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !IsMember(actor, project) {
		return nil, fmt.Errorf("%w: project not owned by you", ErrForbidden)
	}
	return s.repo.ListByProject(ctx, projectID)
}

// ListCreated is the QA dashboard: bugs reported by the actor.
func (s *BugService) ListCreated(ctx context.Context, actor auth.Actor) ([]types.Bug, error) {
	if !actor.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if actor.Role != types.RoleQA {
		return nil, fmt.Errorf("%w: QA role required", ErrForbidden)
	}
	return s.repo.ListByCreator(ctx, actor.ID)
}

// ListAssigned is the developer dashboard: bugs assigned to the actor.
func (s *BugService) ListAssigned(ctx context.Context, actor auth.Actor) ([]types.Bug, error) {
	if err := requirePerms(actor, types.PermViewAssignedBugs); err != nil {
		return nil, err
	}
	return s.repo.ListByAssignee(ctx, actor.ID)
}

func (s *BugService) requireMembership(ctx context.Context, actor auth.Actor, bug types.Bug) error {
	project, err := s.projects.Get(ctx, bug.ProjectID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if !IsMember(actor, project) {
		return fmt.Errorf("%w: not a member of this bug's project", ErrForbidden)
	}
	if actor.Role == types.RoleDeveloper && bug.AssignedTo != nil && *bug.AssignedTo != actor.ID {
		return fmt.Errorf("%w: bug is not assigned to you", ErrForbidden)
	}
	return nil
}

func (s *BugService) validateAssignee(ctx context.Context, assigneeID int, project types.Project) error {
	dev, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: invalid or unauthorized developer", ErrValidation)
		}
		return err
	}
	if dev.Role != types.RoleDeveloper || !containsID(project.DeveloperIDs, dev.ID) {
		return fmt.Errorf("%w: invalid or unauthorized developer", ErrValidation)
	}
	return nil
}

// transitionConflict re-reads a bug after a conditional status write
// affected zero rows, reporting the state the write actually raced with.
func (s *BugService) transitionConflict(ctx context.Context, bugID int, target types.BugStatus) error {
	current, err := s.repo.Get(ctx, bugID)
	if err != nil {
		return err
	}
	return &InvalidTransitionError{Current: current.Status, Requested: target, Allowed: transitions[current.Status]}
}

func (s *BugService) publish(ctx context.Context, event notify.Event) {
	event.OccurredAt = s.clock()
	if err := s.notifier.Publish(ctx, event); err != nil {
		log.Printf("notify: publish %s for bug %d: %v", event.Kind, event.BugID, err)
	}
}

func imageContentType(filename string) (string, error) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".png":
		return "image/png", nil
	case ".gif":
		return "image/gif", nil
	}
	return "", fmt.Errorf("%w: images must be PNG or GIF", ErrValidation)
}

func containsStatus(statuses []types.BugStatus, status types.BugStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}
