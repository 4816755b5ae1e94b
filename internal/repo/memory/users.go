package memory

import (
	"context"
	"strings"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
)

type userRepo struct{ v view }

func (r userRepo) CreateUser(_ context.Context, user domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	user.Email = domain.NormalizeEmail(user.Email)
	return r.v.read(func(st *state) error {
		if _, ok := st.users[user.ID]; ok {
			return &domain.ConflictError{Entity: "user", Field: "id", Value: user.ID}
		}
		for _, existing := range st.users {
			if existing.ExternalSubject == user.ExternalSubject {
				return &domain.ConflictError{Entity: "user", Field: "external_subject", Value: user.ExternalSubject}
			}
			if existing.Email == user.Email {
				return &domain.ConflictError{Entity: "user", Field: "email", Value: user.Email}
			}
		}
		st.users[user.ID] = user
		return nil
	})
}

func (r userRepo) GetUser(_ context.Context, id string) (domain.User, error) {
	var out domain.User
	err := r.v.read(func(st *state) error {
		user, ok := st.users[strings.TrimSpace(id)]
		if !ok {
			return repo.ErrNotFound
		}
		out = user
		return nil
	})
	return out, err
}

func (r userRepo) GetUserBySubject(_ context.Context, subject string) (domain.User, error) {
	subject = strings.TrimSpace(subject)
	var out domain.User
	err := r.v.read(func(st *state) error {
		for _, user := range st.users {
			if user.ExternalSubject == subject {
				out = user
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return out, err
}

func (r userRepo) UpdateUserProfile(_ context.Context, id, name, email string) error {
	email = domain.NormalizeEmail(email)
	return r.v.read(func(st *state) error {
		user, ok := st.users[id]
		if !ok {
			return repo.ErrNotFound
		}
		for _, existing := range st.users {
			if existing.ID != id && existing.Email == email {
				return &domain.ConflictError{Entity: "user", Field: "email", Value: email}
			}
		}
		user.Name = strings.TrimSpace(name)
		user.Email = email
		user.UpdatedAt = nowUTC()
		st.users[id] = user
		return nil
	})
}

func (r userRepo) DeleteUser(_ context.Context, id string) error {
	return r.v.read(func(st *state) error {
		if _, ok := st.users[id]; !ok {
			return repo.ErrNotFound
		}
		for _, run := range st.runs {
			if run.OwnerUserID == id {
				return &domain.ConflictError{Entity: "user", Field: "owned_runs", Value: id}
			}
		}
		delete(st.users, id)
		return nil
	})
}
