// Package identity maps verified external subjects onto stable internal user ids.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
	"github.com/google/uuid"
)

type Service struct {
	users repo.UserRepository
	now   func() time.Time
	newID func() string
}

func New(users repo.UserRepository) *Service {
	if users == nil {
		return nil
	}
	return &Service{
		users: users,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// ResolveOrCreate returns the user bound to subject, creating it on first sight
// and refreshing name and email when they drift. An email already held by a
// different subject yields a *domain.ConflictError on field "email".
func (s *Service) ResolveOrCreate(ctx context.Context, subject, name, email string) (domain.User, error) {
	subject = strings.TrimSpace(subject)
	name = strings.TrimSpace(name)
	email = domain.NormalizeEmail(email)
	if subject == "" {
		return domain.User{}, domain.NewValidationError("external_subject", "is required")
	}
	if email == "" {
		return domain.User{}, domain.NewValidationError("email", "is required")
	}

	user, err := s.users.GetUserBySubject(ctx, subject)
	if err == nil {
		return s.syncProfile(ctx, user, name, email)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}

	now := s.now().UTC()
	user = domain.User{
		ID:              s.newID(),
		ExternalSubject: subject,
		Name:            name,
		Email:           email,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.users.CreateUser(ctx, user)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return domain.User{}, err
	}
	// A concurrent first login for the same subject may have won the insert.
	existing, getErr := s.users.GetUserBySubject(ctx, subject)
	if getErr == nil {
		return s.syncProfile(ctx, existing, name, email)
	}
	if !errors.Is(getErr, repo.ErrNotFound) {
		return domain.User{}, getErr
	}
	return domain.User{}, err
}

func (s *Service) syncProfile(ctx context.Context, user domain.User, name, email string) (domain.User, error) {
	if name == "" {
		name = user.Name
	}
	if user.Name == name && user.Email == email {
		return user, nil
	}
	if err := s.users.UpdateUserProfile(ctx, user.ID, name, email); err != nil {
		return domain.User{}, err
	}
	user.Name = name
	user.Email = email
	user.UpdatedAt = s.now().UTC()
	return user, nil
}

func (s *Service) Get(ctx context.Context, userID string) (domain.User, error) {
	return s.users.GetUser(ctx, strings.TrimSpace(userID))
}
