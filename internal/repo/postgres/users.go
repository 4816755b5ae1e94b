package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bindflow/runledger/internal/domain"
	pg "github.com/bindflow/runledger/internal/platform/postgres"
	"github.com/bindflow/runledger/internal/repo"
)

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	if db == nil {
		return nil
	}
	return &UserStore{db: db}
}

const userColumns = `id, external_subject, name, email, created_at, updated_at`

func (s *UserStore) CreateUser(ctx context.Context, user domain.User) error {
	if s == nil || s.db == nil {
		return errors.New("user store not initialized")
	}
	if err := user.Validate(); err != nil {
		return err
	}
	user.Email = domain.NormalizeEmail(user.Email)
	createdAt := normalizeTime(user.CreatedAt)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO app_users (`+userColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		strings.TrimSpace(user.ID),
		strings.TrimSpace(user.ExternalSubject),
		strings.TrimSpace(user.Name),
		user.Email,
		createdAt,
		createdAt,
	)
	if err != nil {
		if conflict := conflictFromUnique("user", err, map[string]string{
			"id":               user.ID,
			"external_subject": user.ExternalSubject,
			"email":            user.Email,
		}); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.getBy(ctx, "id", strings.TrimSpace(id))
}

func (s *UserStore) GetUserBySubject(ctx context.Context, subject string) (domain.User, error) {
	return s.getBy(ctx, "external_subject", strings.TrimSpace(subject))
}

func (s *UserStore) getBy(ctx context.Context, column, value string) (domain.User, error) {
	if s == nil || s.db == nil {
		return domain.User{}, errors.New("user store not initialized")
	}
	if value == "" {
		return domain.User{}, repo.ErrNotFound
	}
	var user domain.User
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_users WHERE `+column+` = $1`, value)
	if err := row.Scan(&user.ID, &user.ExternalSubject, &user.Name, &user.Email, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return domain.User{}, handleNotFound(err)
	}
	return user, nil
}

func (s *UserStore) UpdateUserProfile(ctx context.Context, id, name, email string) error {
	if s == nil || s.db == nil {
		return errors.New("user store not initialized")
	}
	email = domain.NormalizeEmail(email)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE app_users SET name = $2, email = $3, updated_at = now() WHERE id = $1`,
		strings.TrimSpace(id),
		strings.TrimSpace(name),
		email,
	)
	if err != nil {
		if conflict := conflictFromUnique("user", err, map[string]string{"email": email}); conflict != nil {
			return conflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	return rowsAffected(res)
}

// DeleteUser fails with a conflict while the user still owns runs.
func (s *UserStore) DeleteUser(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("user store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM app_users WHERE id = $1`, strings.TrimSpace(id))
	if err != nil {
		if pg.IsInvalidText(err) {
			return repo.ErrNotFound
		}
		if pg.IsForeignKeyViolation(err) {
			return &domain.ConflictError{Entity: "user", Field: "owned_runs", Value: id}
		}
		return fmt.Errorf("delete user: %w", err)
	}
	return rowsAffected(res)
}
