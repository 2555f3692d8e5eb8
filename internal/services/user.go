package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bugtrackr/apiserver/internal/auth"
	"github.com/bugtrackr/apiserver/internal/store"
	"github.com/bugtrackr/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByEmails(ctx context.Context, emails []string, role types.Role) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	UpdateThrottle(ctx context.Context, user types.User) error
	Delete(ctx context.Context, id int) error
}

// UserService encapsulates account use-cases: signup and the throttled
// authentication flow.
type UserService struct {
	repo   UserRepository
	hasher CredentialHasher
	clock  func() time.Time
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{
		repo:   repo,
		hasher: BcryptHasher{},
		clock:  time.Now,
	}
}

// Register creates an account with one of the three recognized roles.
func (s *UserService) Register(ctx context.Context, name, email, password string, role types.Role) (types.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return types.User{}, fmt.Errorf("%w: name, email and password are required", ErrValidation)
	}
	if _, err := auth.PermissionsFor(role); err != nil {
		return types.User{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: digest,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, fmt.Errorf("%w: email already registered", ErrValidation)
		}
		return types.User{}, err
	}
	return user, nil
}

// Authenticate verifies credentials under the login throttle and returns
// the actor snapshot for the session.
//
// An unknown email and a wrong password fail identically. A locked
// account fails before the password is checked and without touching the
// failure counter. Counter updates are persisted even though the call
// itself fails.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (auth.Actor, error) {
	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return auth.Actor{}, ErrInvalidCredentials
		}
		return auth.Actor{}, err
	}

	now := s.clock()
	if auth.IsLockedOut(user, now) {
		return auth.Actor{}, ErrAccountLocked
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		auth.RecordFailure(&user, now)
		if err := s.repo.UpdateThrottle(ctx, user); err != nil {
			return auth.Actor{}, err
		}
		return auth.Actor{}, ErrInvalidCredentials
	}

	auth.RecordSuccess(&user)
	if err := s.repo.UpdateThrottle(ctx, user); err != nil {
		return auth.Actor{}, err
	}

	return auth.NewActor(user)
}

// ActorByID rebuilds the actor snapshot for an authenticated subject.
// The permission set is resolved fresh on every call so a role change
// takes effect on the next request, not at the next login.
func (s *UserService) ActorByID(ctx context.Context, id int) (auth.Actor, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return auth.Actor{}, err
	}
	return auth.NewActor(user)
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// ResolveMembers maps member emails to accounts, requiring every email
// to exist and to hold the expected role.
func (s *UserService) ResolveMembers(ctx context.Context, emails []string, role types.Role) ([]types.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	users, err := s.repo.GetByEmails(ctx, emails, role)
	if err != nil {
		return nil, err
	}
	if len(users) != len(emails) {
		return nil, fmt.Errorf("%w: some %s accounts not found or hold a different role", ErrValidation, strings.ToLower(string(role)))
	}
	return users, nil
}
