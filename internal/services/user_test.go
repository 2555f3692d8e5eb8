package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bugtrackr/apiserver/internal/auth"
	"github.com/bugtrackr/apiserver/types"
)

func newTestUserService(repo *fakeUserRepo, now time.Time) *UserService {
	s := NewUserService(repo)
	s.hasher = fakeHasher{}
	s.clock = func() time.Time { return now }
	return s
}

func seedUser(t *testing.T, repo *fakeUserRepo, email string, role types.Role) types.User {
	t.Helper()
	user, err := repo.Create(context.Background(), types.User{
		Email:        email,
		Name:         "Test " + string(role),
		Role:         role,
		PasswordHash: "hashed:secret",
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return user
}

func TestRegisterValidatesRole(t *testing.T) {
	repo := newFakeUserRepo()
	s := newTestUserService(repo, time.Now())

	if _, err := s.Register(context.Background(), "X", "x@example.com", "pw", types.Role("Admin")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown role, got %v", err)
	}
	if _, err := s.Register(context.Background(), "", "x@example.com", "pw", types.RoleQA); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty name, got %v", err)
	}

	user, err := s.Register(context.Background(), "X", "x@example.com", "pw", types.RoleQA)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.PasswordHash != "hashed:pw" {
		t.Fatalf("password was not hashed")
	}

	if _, err := s.Register(context.Background(), "Y", "x@example.com", "pw", types.RoleQA); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for duplicate email, got %v", err)
	}
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	repo := newFakeUserRepo()
	s := newTestUserService(repo, time.Now())

	if _, err := s.Authenticate(context.Background(), "ghost@example.com", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateWrongPasswordPersistsFailure(t *testing.T) {
	repo := newFakeUserRepo()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newTestUserService(repo, now)
	user := seedUser(t, repo, "qa@example.com", types.RoleQA)

	if _, err := s.Authenticate(context.Background(), "qa@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	stored := repo.users[user.ID]
	if stored.FailedLoginAttempts != 1 {
		t.Fatalf("counter = %d, want 1", stored.FailedLoginAttempts)
	}
	if stored.LockUntil != nil {
		t.Fatalf("no lockout expected after one failure")
	}
}

func TestAuthenticateFifthFailureLocksAccount(t *testing.T) {
	repo := newFakeUserRepo()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newTestUserService(repo, now)
	user := seedUser(t, repo, "qa@example.com", types.RoleQA)

	stored := repo.users[user.ID]
	stored.FailedLoginAttempts = 4
	repo.users[user.ID] = stored

	if _, err := s.Authenticate(context.Background(), "qa@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	stored = repo.users[user.ID]
	if stored.FailedLoginAttempts != 5 {
		t.Fatalf("counter = %d, want 5", stored.FailedLoginAttempts)
	}
	if stored.LockUntil == nil || !stored.LockUntil.Equal(now.Add(auth.LockoutDuration)) {
		t.Fatalf("LockUntil = %v, want %v", stored.LockUntil, now.Add(auth.LockoutDuration))
	}

	// Correct password while locked: AccountLocked, counter untouched.
	if _, err := s.Authenticate(context.Background(), "qa@example.com", "secret"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if repo.users[user.ID].FailedLoginAttempts != 5 {
		t.Fatalf("locked attempt must not touch the counter")
	}
}

func TestAuthenticateAfterLockoutExpires(t *testing.T) {
	repo := newFakeUserRepo()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newTestUserService(repo, now)
	user := seedUser(t, repo, "qa@example.com", types.RoleQA)

	until := now.Add(-time.Minute)
	stored := repo.users[user.ID]
	stored.FailedLoginAttempts = 5
	stored.LockUntil = &until
	repo.users[user.ID] = stored

	actor, err := s.Authenticate(context.Background(), "qa@example.com", "secret")
	if err != nil {
		t.Fatalf("Authenticate after expiry: %v", err)
	}
	if actor.ID != user.ID || actor.Role != types.RoleQA {
		t.Fatalf("unexpected actor: %+v", actor)
	}
	if !actor.Has(types.PermCreateBug) {
		t.Fatalf("expected QA actor to hold create_bug")
	}

	stored = repo.users[user.ID]
	if stored.FailedLoginAttempts != 0 || stored.LockUntil != nil {
		t.Fatalf("success must reset throttle state, got %d / %v", stored.FailedLoginAttempts, stored.LockUntil)
	}
}

func TestActorByIDResolvesFreshPermissions(t *testing.T) {
	repo := newFakeUserRepo()
	s := newTestUserService(repo, time.Now())
	user := seedUser(t, repo, "dev@example.com", types.RoleDeveloper)

	actor, err := s.ActorByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("ActorByID: %v", err)
	}
	if actor.Has(types.PermCloseBug) {
		t.Fatalf("developer must not hold close_bug")
	}

	// Role change takes effect on the next snapshot.
	stored := repo.users[user.ID]
	stored.Role = types.RoleManager
	repo.users[user.ID] = stored

	actor, err = s.ActorByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("ActorByID after role change: %v", err)
	}
	if !actor.Has(types.PermCloseBug) {
		t.Fatalf("expected manager snapshot to hold close_bug")
	}
}
